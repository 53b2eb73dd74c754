package score

import (
	"sort"

	"github.com/ppiankov/skylink/internal/model"
)

// DailySummaries groups observations by date with object counts and diameter
// extremes. Observations without a size estimate count but do not affect the
// extremes. The result is ordered by date.
func DailySummaries(observations []model.ObservationRecord) []model.DailySummary {
	byDay := make(map[model.Day]*model.DailySummary)
	sized := make(map[model.Day]bool)

	for _, obs := range observations {
		d, ok := byDay[obs.Date]
		if !ok {
			d = &model.DailySummary{Date: obs.Date}
			byDay[obs.Date] = d
		}
		d.Count++
		if obs.Hazardous {
			d.Hazardous++
		}
		if obs.LinkedImageID != nil && d.ImageID == nil {
			id := *obs.LinkedImageID
			d.ImageID = &id
		}
		if obs.Size == nil {
			continue
		}
		if !sized[obs.Date] {
			d.SmallestKM, d.LargestKM = obs.Size.MinKM, obs.Size.MaxKM
			sized[obs.Date] = true
			continue
		}
		if obs.Size.MinKM < d.SmallestKM {
			d.SmallestKM = obs.Size.MinKM
		}
		if obs.Size.MaxKM > d.LargestKM {
			d.LargestKM = obs.Size.MaxKM
		}
	}

	out := make([]model.DailySummary, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
