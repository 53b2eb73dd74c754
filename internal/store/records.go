package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

const upsertImageSQL = `
INSERT INTO images (id, date, title, explanation, media_url, hd_url, media_type, copyright, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    date = excluded.date,
    title = excluded.title,
    explanation = excluded.explanation,
    media_url = excluded.media_url,
    hd_url = excluded.hd_url,
    media_type = excluded.media_type,
    copyright = excluded.copyright,
    fetched_at = excluded.fetched_at`

// linked_image_id is owned by SaveRun and survives a refetch.
const upsertObservationSQL = `
INSERT INTO observations (id, neo_id, date, name, size_min_km, size_max_km, hazardous,
    absolute_magnitude, jpl_url, approach_json, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    neo_id = excluded.neo_id,
    date = excluded.date,
    name = excluded.name,
    size_min_km = excluded.size_min_km,
    size_max_km = excluded.size_max_km,
    hazardous = excluded.hazardous,
    absolute_magnitude = excluded.absolute_magnitude,
    jpl_url = excluded.jpl_url,
    approach_json = excluded.approach_json,
    fetched_at = excluded.fetched_at`

const imageColumns = `id, date, title, explanation, media_url, hd_url, media_type, copyright`

const observationColumns = `o.id, o.neo_id, o.date, o.name, o.size_min_km, o.size_max_km, o.hazardous,
    o.absolute_magnitude, o.jpl_url, o.approach_json, o.linked_image_id`

// UpsertImages inserts or refreshes images by id.
func (s *Store) UpsertImages(ctx context.Context, images []model.ImageRecord) error {
	if len(images) == 0 {
		return nil
	}
	now := formatTime(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertImages(ctx, tx, images, now)
	})
}

func upsertImages(ctx context.Context, tx *sql.Tx, images []model.ImageRecord, now string) error {
	stmt, err := tx.PrepareContext(ctx, upsertImageSQL)
	if err != nil {
		return fmt.Errorf("prepare image upsert: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		if _, err := stmt.ExecContext(ctx, img.ID, string(img.Date), img.Title, img.Explanation,
			img.MediaURL, img.HDURL, img.MediaType, img.Copyright, now); err != nil {
			return fmt.Errorf("upsert image %s: %w", img.ID, err)
		}
	}
	return nil
}

// UpsertObservations inserts or refreshes observations by id. Existing links
// are kept.
func (s *Store) UpsertObservations(ctx context.Context, observations []model.ObservationRecord) error {
	if len(observations) == 0 {
		return nil
	}
	now := formatTime(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertObservations(ctx, tx, observations, now)
	})
}

func upsertObservations(ctx context.Context, tx *sql.Tx, observations []model.ObservationRecord, now string) error {
	stmt, err := tx.PrepareContext(ctx, upsertObservationSQL)
	if err != nil {
		return fmt.Errorf("prepare observation upsert: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		var minKM, maxKM sql.NullFloat64
		if obs.Size != nil {
			minKM = sql.NullFloat64{Float64: obs.Size.MinKM, Valid: true}
			maxKM = sql.NullFloat64{Float64: obs.Size.MaxKM, Valid: true}
		}
		var approach sql.NullString
		if obs.Approach != nil {
			data, err := json.Marshal(obs.Approach)
			if err != nil {
				return fmt.Errorf("encode approach %s: %w", obs.ID, err)
			}
			approach = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, obs.ID, obs.NeoID, string(obs.Date), obs.Name, minKM, maxKM,
			obs.Hazardous, obs.AbsoluteMagnitude, obs.JPLURL, approach, now); err != nil {
			return fmt.Errorf("upsert observation %s: %w", obs.ID, err)
		}
	}
	return nil
}

// ImagesInRange returns the stored images dated within r, by date then id.
func (s *Store) ImagesInRange(ctx context.Context, r model.DateRange) ([]model.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE date BETWEEN ? AND ? ORDER BY date, id`,
		string(r.From), string(r.To))
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := []model.ImageRecord{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ObservationsInRange returns the stored observations dated within r, by date
// and then in the order they were first stored.
func (s *Store) ObservationsInRange(ctx context.Context, r model.DateRange) ([]model.ObservationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM observations o WHERE o.date BETWEEN ? AND ? ORDER BY o.date, o.rowid`,
		string(r.From), string(r.To))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	observations := []model.ObservationRecord{}
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// Image returns one image by id.
func (s *Store) Image(ctx context.Context, id string) (*model.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// Observation returns one observation by id.
func (s *Store) Observation(ctx context.Context, id string) (*model.ObservationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations o WHERE o.id = ?`, id)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("observation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// LatestImage returns the most recently dated image.
func (s *Store) LatestImage(ctx context.Context) (*model.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY date DESC, id DESC LIMIT 1`)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest image: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// DateBounds returns the earliest and latest observation dates. ok is false
// when no observation is stored.
func (s *Store) DateBounds(ctx context.Context) (from, to model.Day, ok bool, err error) {
	var lo, hi sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM observations`).Scan(&lo, &hi); err != nil {
		return "", "", false, fmt.Errorf("query date bounds: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return "", "", false, nil
	}
	return model.Day(lo.String), model.Day(hi.String), true, nil
}

// LatestObservationDate returns the newest stored observation date, the
// starting point of an incremental fetch.
func (s *Store) LatestObservationDate(ctx context.Context) (model.Day, bool, error) {
	_, to, ok, err := s.DateBounds(ctx)
	return to, ok, err
}

// SaveOrbit stores the orbital elements of one object.
func (s *Store) SaveOrbit(ctx context.Context, el *model.OrbitalElements) error {
	data, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode orbit %s: %w", el.NeoID, err)
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO orbits (neo_id, elements_json, fetched_at) VALUES (?, ?, ?)
ON CONFLICT(neo_id) DO UPDATE SET elements_json = excluded.elements_json, fetched_at = excluded.fetched_at`,
			el.NeoID, string(data), formatTime(time.Now()))
		return err
	})
}

// Orbit returns the stored orbital elements of one object.
func (s *Store) Orbit(ctx context.Context, neoID string) (*model.OrbitalElements, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT elements_json FROM orbits WHERE neo_id = ?`, neoID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("orbit %s: %w", neoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query orbit %s: %w", neoID, err)
	}
	var el model.OrbitalElements
	if err := json.Unmarshal([]byte(data), &el); err != nil {
		return nil, fmt.Errorf("decode orbit %s: %w", neoID, err)
	}
	return &el, nil
}

// MissingOrbits returns the object ids in neoIDs that have no stored orbit.
func (s *Store) MissingOrbits(ctx context.Context, neoIDs []string) ([]string, error) {
	var missing []string
	seen := make(map[string]bool, len(neoIDs))
	for _, id := range neoIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orbits WHERE neo_id = ?`, id).Scan(&count); err != nil {
			return nil, fmt.Errorf("query orbit %s: %w", id, err)
		}
		if count == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (model.ImageRecord, error) {
	var img model.ImageRecord
	var date string
	err := row.Scan(&img.ID, &date, &img.Title, &img.Explanation, &img.MediaURL, &img.HDURL, &img.MediaType, &img.Copyright)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return img, err
		}
		return img, fmt.Errorf("scan image: %w", err)
	}
	img.Date = model.Day(date)
	return img, nil
}

func scanObservation(row rowScanner) (model.ObservationRecord, error) {
	var (
		obs      model.ObservationRecord
		date     string
		minKM    sql.NullFloat64
		maxKM    sql.NullFloat64
		approach sql.NullString
		linked   sql.NullString
	)
	err := row.Scan(&obs.ID, &obs.NeoID, &date, &obs.Name, &minKM, &maxKM, &obs.Hazardous,
		&obs.AbsoluteMagnitude, &obs.JPLURL, &approach, &linked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return obs, err
		}
		return obs, fmt.Errorf("scan observation: %w", err)
	}

	obs.Date = model.Day(date)
	if minKM.Valid && maxKM.Valid {
		obs.Size = &model.SizeRange{MinKM: minKM.Float64, MaxKM: maxKM.Float64}
	}
	if approach.Valid && approach.String != "" {
		var a model.Approach
		if err := json.Unmarshal([]byte(approach.String), &a); err != nil {
			return obs, fmt.Errorf("decode approach %s: %w", obs.ID, err)
		}
		obs.Approach = &a
	}
	if linked.Valid {
		obs = obs.WithLink(linked.String)
	}
	return obs, nil
}
