package export

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/skylink/internal/model"
)

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, report *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}

// ReadJSON decodes a report written by WriteJSON.
func ReadJSON(r io.Reader) (*model.Report, error) {
	var report model.Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}
