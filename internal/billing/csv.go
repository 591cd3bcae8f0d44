package billing

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// ReadCSV decodes bill rows from r. The first line is the header.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	dec, err := csvutil.NewDecoder(reader, normalizeHeader(header)...)
	if err != nil {
		return nil, eris.Wrap(err, "csv: new decoder")
	}

	rows := []Row{}
	for {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "csv: decode row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	return out
}
