package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage reports bytes used by each named path and their total.
type DiskUsage struct {
	Paths map[string]int64 `json:"paths"`
	Total int64            `json:"total"`
}

// MeasureDiskUsage sums the size of each named file or directory. Empty and missing
// paths count as zero.
func MeasureDiskUsage(named map[string]string) (DiskUsage, error) {
	u := DiskUsage{Paths: make(map[string]int64, len(named))}
	for name, p := range named {
		n, err := DiskUsageBytes(p)
		if err != nil {
			return DiskUsage{}, err
		}
		u.Paths[name] = n
		u.Total += n
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given files and directories.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
