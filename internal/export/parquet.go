package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/skylink/internal/model"
)

// LinkageRow is the flat parquet form of one linkage view.
type LinkageRow struct {
	ObservationID string  `parquet:"observation_id"`
	NeoID         string  `parquet:"neo_id"`
	Name          string  `parquet:"name"`
	Date          string  `parquet:"date"`
	Hazardous     bool    `parquet:"hazardous"`
	SizeMinKM     float64 `parquet:"size_min_km"`
	SizeMaxKM     float64 `parquet:"size_max_km"`
	ImageID       string  `parquet:"image_id"`
	ImageTitle    string  `parquet:"image_title"`
	MatchType     string  `parquet:"match_type"`
	Score         float64 `parquet:"score"`
	Alternatives  int32   `parquet:"alternatives"`
}

// LinkageRows flattens the views of l in view order.
func LinkageRows(l *model.Linkage) []LinkageRow {
	obsByID := l.ObservationByID()
	imgByID := l.ImageByID()

	rows := make([]LinkageRow, 0, len(l.Views))
	for _, v := range l.Views {
		obs := obsByID[v.ObservationID]
		row := LinkageRow{
			ObservationID: v.ObservationID,
			NeoID:         obs.NeoID,
			Name:          obs.Name,
			Date:          string(obs.Date),
			Hazardous:     obs.Hazardous,
			MatchType:     string(v.Type),
			Score:         v.Score,
			Alternatives:  int32(len(v.Alternatives)),
		}
		if obs.Size != nil {
			row.SizeMinKM, row.SizeMaxKM = obs.Size.MinKM, obs.Size.MaxKM
		}
		if v.ImageID != nil {
			row.ImageID = *v.ImageID
			row.ImageTitle = imgByID[*v.ImageID].Title
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteParquet writes the linkage view as a single parquet file.
func WriteParquet(w io.Writer, l *model.Linkage) error {
	pw := parquet.NewGenericWriter[LinkageRow](w)
	if _, err := pw.Write(LinkageRows(l)); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet reads rows written by WriteParquet.
func ReadParquet(path string) ([]LinkageRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[LinkageRow](pf)
	defer reader.Close()

	records := make([]LinkageRow, 0, pf.NumRows())
	batch := make([]LinkageRow, 128)
	for {
		n, err := reader.Read(batch)
		records = append(records, batch[:n]...)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return records, nil
		}
	}
}
