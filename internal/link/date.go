package link

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// LinkByDate returns copies of observations with LinkedImageID set to the
// image sharing their calendar date, or cleared when there is none. When
// several images share a date the lowest id wins and one duplicate_date note
// per such date is returned, ordered by date. Inputs are not modified.
func LinkByDate(observations []model.ObservationRecord, images []model.ImageRecord) ([]model.ObservationRecord, []model.Note) {
	byDate := make(map[model.Day][]string)
	for _, img := range images {
		ids := byDate[img.Date]
		if !containsID(ids, img.ID) {
			byDate[img.Date] = append(ids, img.ID)
		}
	}

	chosen := make(map[model.Day]string, len(byDate))
	var notes []model.Note
	for day, ids := range byDate {
		winner := lowestID(ids)
		chosen[day] = winner
		if len(ids) > 1 {
			notes = append(notes, duplicateNote(day, winner, ids))
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].RecordID < notes[j].RecordID })

	linked := make([]model.ObservationRecord, len(observations))
	for i, obs := range observations {
		linked[i] = obs.WithLink(chosen[obs.Date])
	}

	return linked, notes
}

func duplicateNote(day model.Day, winner string, ids []string) model.Note {
	related := append([]string(nil), ids...)
	sort.Slice(related, func(i, j int) bool { return compareIDs(related[i], related[j]) < 0 })

	return model.Note{
		Kind:     model.NoteDuplicateDate,
		Severity: model.SeverityInfo,
		RecordID: string(day),
		Message: fmt.Sprintf("%d images share %s; linked %s (candidates: %s)",
			len(ids), day, winner, strings.Join(related, ", ")),
		Related: related,
	}
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
