package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ppiankov/skylink/internal/model"
)

var matchedHeader = []string{
	"observation_id", "neo_id", "neo_name", "neo_date", "diameter_min_km", "diameter_max_km", "is_hazardous",
	"image_id", "image_title", "image_date", "image_url", "match_type", "match_score", "rank",
}

// WriteMatchedCSV writes one row per visible link: the primary link of every
// matched observation followed by its fuzzy alternatives.
func WriteMatchedCSV(w io.Writer, l *model.Linkage) error {
	obsByID := l.ObservationByID()
	imgByID := l.ImageByID()

	cw := csv.NewWriter(w)
	if err := cw.Write(matchedHeader); err != nil {
		return err
	}

	for _, v := range l.Views {
		if !v.Matched() {
			continue
		}
		obs := obsByID[v.ObservationID]
		rows := []model.MatchCandidate{{ObservationID: v.ObservationID, ImageID: *v.ImageID, Score: v.Score, Type: v.Type, Rank: 1}}
		rows = append(rows, v.Alternatives...)
		for _, c := range rows {
			img := imgByID[c.ImageID]
			minKM, maxKM := sizeFields(obs.Size)
			if err := cw.Write([]string{
				obs.ID, obs.NeoID, obs.Name, string(obs.Date), minKM, maxKM, strconv.FormatBool(obs.Hazardous),
				img.ID, img.Title, string(img.Date), img.MediaURL, string(c.Type), formatScore(c.Score), strconv.Itoa(c.Rank),
			}); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCandidateCSV writes every persisted candidate, including fuzzy rows
// hidden behind an exact link.
func WriteCandidateCSV(w io.Writer, l *model.Linkage) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"observation_id", "image_id", "match_type", "rank", "score"}); err != nil {
		return err
	}
	for _, c := range l.Candidates {
		if err := cw.Write([]string{c.ObservationID, c.ImageID, string(c.Type), strconv.Itoa(c.Rank), formatScore(c.Score)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteObservationsCSV writes the linked observation set.
func WriteObservationsCSV(w io.Writer, l *model.Linkage) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "neo_id", "date", "name", "diameter_min_km", "diameter_max_km", "is_hazardous",
		"absolute_magnitude", "velocity_kps", "miss_distance_km", "linked_image_id",
	}); err != nil {
		return err
	}
	for _, o := range l.Observations {
		minKM, maxKM := sizeFields(o.Size)
		var velocity, miss string
		if o.Approach != nil {
			velocity = strconv.FormatFloat(o.Approach.VelocityKPS, 'f', 3, 64)
			miss = strconv.FormatFloat(o.Approach.MissDistanceKM, 'f', 0, 64)
		}
		linked := ""
		if o.LinkedImageID != nil {
			linked = *o.LinkedImageID
		}
		if err := cw.Write([]string{
			o.ID, o.NeoID, string(o.Date), o.Name, minKM, maxKM, strconv.FormatBool(o.Hazardous),
			strconv.FormatFloat(o.AbsoluteMagnitude, 'f', 2, 64), velocity, miss, linked,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sizeFields(s *model.SizeRange) (string, string) {
	if s == nil {
		return "", ""
	}
	return strconv.FormatFloat(s.MinKM, 'f', 6, 64), strconv.FormatFloat(s.MaxKM, 'f', 6, 64)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
