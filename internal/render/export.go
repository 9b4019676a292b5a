package render

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/sadopc/bankql/internal/adapter"
)

// WriteCSV writes the header and rows of res as CSV.
func WriteCSV(w io.Writer, res *adapter.QueryResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.ColumnNames()); err != nil {
		return err
	}
	for _, row := range res.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes res as an indented JSON array of objects keyed by column
// name.
func WriteJSON(w io.Writer, res *adapter.QueryResult) error {
	names := res.ColumnNames()
	objects := make([]map[string]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		obj := make(map[string]string, len(names))
		for j, name := range names {
			if j < len(row) {
				obj[name] = row[j]
			} else {
				obj[name] = ""
			}
		}
		objects = append(objects, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}
