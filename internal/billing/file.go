package billing

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadFile reads bill rows from a .csv or .xlsx file.
func ReadFile(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path) //nolint:gosec // user-supplied import path
		if err != nil {
			return nil, eris.Wrap(err, "billing: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("billing: unsupported file type %q", filepath.Ext(path))
	}
}
