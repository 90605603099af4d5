package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/lu4p/cat"
)

// catExtractor returns a Func that hands the bytes to lu4p/cat through a temporary
// file, since cat detects the format from the file name.
func catExtractor(ext string) Func {
	return func(content []byte) (string, error) {
		f, err := os.CreateTemp("", "otasuke-*"+ext)
		if err != nil {
			return "", err
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		text, err := cat.File(f.Name())
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", ext, err)
		}
		return strings.TrimSpace(text), nil
	}
}
