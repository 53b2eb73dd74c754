package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/skylink/internal/model"
)

// RunInfo describes one persisted linkage run.
type RunInfo struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Range     *model.DateRange   `json:"range,omitempty"`
	Threshold float64            `json:"threshold"`
	TopK      int                `json:"top_k"`
	Stats     model.LinkageStats `json:"stats"`
}

// ObservationMatch is the primary image of one observation.
type ObservationMatch struct {
	Observation model.ObservationRecord `json:"observation"`
	Image       *model.ImageRecord      `json:"image"`
	Score       float64                 `json:"score"`
	Type        model.MatchType         `json:"match_type"`
}

// ImageMatch is one observation linked to an image.
type ImageMatch struct {
	Observation model.ObservationRecord `json:"observation"`
	Score       float64                 `json:"score"`
	Type        model.MatchType         `json:"match_type"`
	Rank        int                     `json:"rank"`
}

// ImageLinkCount is an image with the number of observations it is the
// primary link for.
type ImageLinkCount struct {
	ImageID string    `json:"image_id"`
	Date    model.Day `json:"date"`
	Title   string    `json:"title"`
	Links   int       `json:"links"`
}

// Summary holds join statistics over the whole store.
type Summary struct {
	Observations       int             `json:"observations"`
	Images             int             `json:"images"`
	DateJoins          int             `json:"date_joins"`
	FuzzyJoins         int             `json:"fuzzy_joins"`
	UniqueLinkedImages int             `json:"unique_linked_images"`
	From               model.Day       `json:"from,omitempty"`
	To                 model.Day       `json:"to,omitempty"`
	TopImage           *ImageLinkCount `json:"top_image,omitempty"`
	Runs               int             `json:"runs"`
	LastRun            *RunInfo        `json:"last_run,omitempty"`
}

// SaveRun persists a linkage result in one transaction: the run's records,
// the observations' exact links and every candidate row. Candidates stored
// by earlier runs for the same observations are replaced. A run id is
// assigned when l has none.
func (s *Store) SaveRun(ctx context.Context, l *model.Linkage) (string, error) {
	if l == nil {
		return "", fmt.Errorf("save run: nil linkage")
	}
	if l.RunID == "" {
		l.RunID = uuid.NewString()
	}
	created := l.GeneratedAt
	if created.IsZero() {
		created = time.Now()
	}
	now := formatTime(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var from, to sql.NullString
		if l.Range != nil {
			from, to = nullString(string(l.Range.From)), nullString(string(l.Range.To))
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO linkage_runs (id, created_at, range_from, range_to, threshold, top_k,
    observations, images, exact_links, fuzzy_links, unmatched, malformed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.RunID, formatTime(created), from, to, l.Threshold, l.TopK,
			l.Stats.Observations, l.Stats.Images, l.Stats.ExactLinks, l.Stats.FuzzyMatched,
			l.Stats.Unmatched, l.Stats.Malformed); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if err := upsertImages(ctx, tx, l.Images, now); err != nil {
			return err
		}
		if err := upsertObservations(ctx, tx, l.Observations, now); err != nil {
			return err
		}

		link, err := tx.PrepareContext(ctx, `UPDATE observations SET linked_image_id = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare link update: %w", err)
		}
		defer link.Close()
		wipe, err := tx.PrepareContext(ctx, `DELETE FROM match_candidates WHERE observation_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare candidate delete: %w", err)
		}
		defer wipe.Close()

		wiped := make(map[string]bool, len(l.Observations))
		wipeFor := func(id string) error {
			if wiped[id] {
				return nil
			}
			wiped[id] = true
			if _, err := wipe.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("clear candidates %s: %w", id, err)
			}
			return nil
		}

		for _, obs := range l.Observations {
			var linked sql.NullString
			if obs.LinkedImageID != nil {
				linked = nullString(*obs.LinkedImageID)
			}
			if _, err := link.ExecContext(ctx, linked, obs.ID); err != nil {
				return fmt.Errorf("update link %s: %w", obs.ID, err)
			}
			if err := wipeFor(obs.ID); err != nil {
				return err
			}
		}
		for _, c := range l.Candidates {
			if err := wipeFor(c.ObservationID); err != nil {
				return err
			}
		}

		insert, err := tx.PrepareContext(ctx, `
INSERT INTO match_candidates (observation_id, image_id, match_type, rank, score, run_id)
VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare candidate insert: %w", err)
		}
		defer insert.Close()

		for _, c := range l.Candidates {
			if _, err := insert.ExecContext(ctx, c.ObservationID, c.ImageID, string(c.Type), c.Rank, c.Score, l.RunID); err != nil {
				return fmt.Errorf("insert candidate %s/%s: %w", c.ObservationID, c.ImageID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return l.RunID, nil
}

// ImageForObservation returns the observation's exact-date image, else its
// best fuzzy candidate. Image is nil and Type is none when it has neither.
func (s *Store) ImageForObservation(ctx context.Context, observationID string) (*ObservationMatch, error) {
	obs, err := s.Observation(ctx, observationID)
	if err != nil {
		return nil, err
	}

	m := &ObservationMatch{Observation: *obs, Type: model.MatchNone}

	var imageID, matchType string
	var score float64
	err = s.db.QueryRowContext(ctx, `
SELECT image_id, score, match_type FROM primary_links WHERE observation_id = ?
ORDER BY CASE match_type WHEN 'exact_date' THEN 0 ELSE 1 END LIMIT 1`, observationID).Scan(&imageID, &score, &matchType)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query primary link %s: %w", observationID, err)
	}

	img, err := s.Image(ctx, imageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	m.Image = img
	m.Score = score
	m.Type = model.MatchType(matchType)
	return m, nil
}

// ObservationsForImage returns every observation with an exact or fuzzy
// candidate row for the image, highest score first.
func (s *Store) ObservationsForImage(ctx context.Context, imageID string) ([]ImageMatch, error) {
	if _, err := s.Image(ctx, imageID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+observationColumns+`, c.score, c.match_type, c.rank
FROM match_candidates c
JOIN observations o ON o.id = c.observation_id
WHERE c.image_id = ?
ORDER BY c.score DESC, CASE c.match_type WHEN 'exact_date' THEN 0 ELSE 1 END, o.date, o.id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", imageID, err)
	}
	defer rows.Close()

	matches := []ImageMatch{}
	for rows.Next() {
		var m ImageMatch
		var matchType string
		obs, err := scanObservation(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &m.Score, &matchType, &m.Rank)...)
		}))
		if err != nil {
			return nil, err
		}
		m.Observation = obs
		m.Type = model.MatchType(matchType)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// Summary computes join statistics across everything stored.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM observations`, &sum.Observations},
		{`SELECT COUNT(1) FROM images`, &sum.Images},
		{`SELECT COUNT(1) FROM primary_links WHERE match_type = 'exact_date'`, &sum.DateJoins},
		{`SELECT COUNT(1) FROM primary_links WHERE match_type = 'fuzzy'`, &sum.FuzzyJoins},
		{`SELECT COUNT(DISTINCT image_id) FROM primary_links`, &sum.UniqueLinkedImages},
		{`SELECT COUNT(1) FROM linkage_runs`, &sum.Runs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("summary %q: %w", c.query, err)
		}
	}

	from, to, ok, err := s.DateBounds(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		sum.From, sum.To = from, to
	}

	var top ImageLinkCount
	var date string
	err = s.db.QueryRowContext(ctx, `
SELECT p.image_id, COALESCE(i.date, ''), COALESCE(i.title, ''), COUNT(1) AS links
FROM primary_links p LEFT JOIN images i ON i.id = p.image_id
GROUP BY p.image_id
ORDER BY links DESC, p.image_id
LIMIT 1`).Scan(&top.ImageID, &date, &top.Title, &top.Links)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("summary top image: %w", err)
	default:
		top.Date = model.Day(date)
		sum.TopImage = &top
	}

	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		sum.LastRun = &runs[0]
	}
	return sum, nil
}

// Runs lists the most recent runs, newest first. limit <= 0 lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `
SELECT id, created_at, COALESCE(range_from, ''), COALESCE(range_to, ''), threshold, top_k,
    observations, images, exact_links, fuzzy_links, unmatched, malformed
FROM linkage_runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		var created, from, to string
		if err := rows.Scan(&r.ID, &created, &from, &to, &r.Threshold, &r.TopK,
			&r.Stats.Observations, &r.Stats.Images, &r.Stats.ExactLinks, &r.Stats.FuzzyMatched,
			&r.Stats.Unmatched, &r.Stats.Malformed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = parseTime(created)
		if from != "" && to != "" {
			r.Range = &model.DateRange{From: model.Day(from), To: model.Day(to)}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes runs older than keep whose candidates have all been replaced
// by later runs.
func (s *Store) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-keep))
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM linkage_runs
WHERE created_at < ? AND id NOT IN (SELECT DISTINCT run_id FROM match_candidates)`, cutoff)
		if err != nil {
			return fmt.Errorf("delete runs: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return n, nil
}
