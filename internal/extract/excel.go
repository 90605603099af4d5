package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders every sheet like a CSV file, first row as header, each
// sheet introduced by its name.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		body := renderRows(rows[0], rows[1:])
		if body == "" {
			body = strings.Join(rows[0], " ")
		}
		sheets = append(sheets, "# "+sheet+"\n"+body)
	}
	return strings.Join(sheets, "\n\n"), nil
}
