package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/worker"
)

// feedWindowDays is the widest range the NeoWs feed endpoint accepts.
const feedWindowDays = 7

// ObservationSource yields observation records for a date range.
type ObservationSource interface {
	Observations(ctx context.Context, r model.DateRange) ([]model.ObservationRecord, error)
}

// NeoWsClient reads the Near Earth Object Web Service at {base}/neo/rest/v1.
type NeoWsClient struct {
	fetcher     *Fetcher
	baseURL     string
	apiKey      string
	perDayLimit int
	workers     int
	logger      *slog.Logger
}

// NewNeoWsClient creates a NeoWs client. perDayLimit caps the objects kept per
// day (0 keeps all); workers bounds concurrent window requests.
func NewNeoWsClient(f *Fetcher, baseURL, apiKey string, perDayLimit, workers int, logger *slog.Logger) *NeoWsClient {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NeoWsClient{
		fetcher:     f,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKeyOrDemo(apiKey),
		perDayLimit: perDayLimit,
		workers:     workers,
		logger:      logger,
	}
}

type neoFeed struct {
	ElementCount    int                  `json:"element_count"`
	NearEarthObject map[string][]neoItem `json:"near_earth_objects"`
}

type neoItem struct {
	ID                string    `json:"id"`
	ReferenceID       string    `json:"neo_reference_id"`
	Name              string    `json:"name"`
	JPLURL            string    `json:"nasa_jpl_url"`
	AbsoluteMagnitude flexFloat `json:"absolute_magnitude_h"`
	EstimatedDiameter struct {
		Kilometers *struct {
			Min flexFloat `json:"estimated_diameter_min"`
			Max flexFloat `json:"estimated_diameter_max"`
		} `json:"kilometers"`
	} `json:"estimated_diameter"`
	Hazardous bool          `json:"is_potentially_hazardous_asteroid"`
	Approach  []neoApproach `json:"close_approach_data"`
}

type neoApproach struct {
	Date     string `json:"close_approach_date"`
	DateFull string `json:"close_approach_date_full"`
	Velocity struct {
		KPS flexFloat `json:"kilometers_per_second"`
	} `json:"relative_velocity"`
	MissDistance struct {
		Lunar      flexFloat `json:"lunar"`
		Kilometers flexFloat `json:"kilometers"`
	} `json:"miss_distance"`
	OrbitingBody string `json:"orbiting_body"`
}

// Observations returns the objects listed for each day in r, sorted by date
// and otherwise in feed order. Weekly windows are fetched concurrently.
func (c *NeoWsClient) Observations(ctx context.Context, r model.DateRange) ([]model.ObservationRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	windows := r.Split(feedWindowDays)
	workers := c.workers
	if workers > len(windows) {
		workers = len(windows)
	}

	type windowResult struct {
		observations []model.ObservationRecord
		err          error
	}

	pool := worker.NewPool[windowResult](ctx, workers)
	pool.Start()
	for _, w := range windows {
		pool.Submit(func(ctx context.Context) windowResult {
			obs, err := c.fetchWindow(ctx, w)
			return windowResult{observations: obs, err: err}
		})
	}
	results, err := pool.Wait()

	// The earliest failing window wins so the error does not depend on timing.
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("neows feed: %w", err)
	}

	var out []model.ObservationRecord
	for _, res := range results {
		out = append(out, res.observations...)
	}
	return out, nil
}

func (c *NeoWsClient) fetchWindow(ctx context.Context, w model.DateRange) ([]model.ObservationRecord, error) {
	q := url.Values{}
	q.Set("start_date", w.From.String())
	q.Set("end_date", w.To.String())
	q.Set("api_key", c.apiKey)

	body, err := c.fetcher.Get(ctx, c.baseURL+"/neo/rest/v1/feed?"+q.Encode(), "application/json")
	if err != nil {
		return nil, fmt.Errorf("neows feed %s: %w", w, err)
	}

	var feed neoFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("neows feed %s: decode: %w", w, err)
	}

	dates := make([]string, 0, len(feed.NearEarthObject))
	for d := range feed.NearEarthObject {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []model.ObservationRecord
	for _, d := range dates {
		day := model.Day(d)
		if !w.Contains(day) {
			continue
		}
		items := feed.NearEarthObject[d]
		if c.perDayLimit > 0 && len(items) > c.perDayLimit {
			c.logger.Debug("per-day limit applied", "date", d, "listed", len(items), "kept", c.perDayLimit)
			items = items[:c.perDayLimit]
		}
		for _, it := range items {
			out = append(out, it.record(day))
		}
	}
	return out, nil
}

// ObservationID is the id of object neoID's listing on day d. An object that
// approaches on several days yields several observations.
func ObservationID(neoID string, d model.Day) string {
	return neoID + "@" + d.String()
}

func (it neoItem) record(day model.Day) model.ObservationRecord {
	neoID := strings.TrimSpace(it.ID)
	if neoID == "" {
		neoID = strings.TrimSpace(it.ReferenceID)
	}

	obs := model.ObservationRecord{
		NeoID:             neoID,
		Date:              day,
		Name:              strings.TrimSpace(it.Name),
		Hazardous:         it.Hazardous,
		AbsoluteMagnitude: float64(it.AbsoluteMagnitude),
		JPLURL:            it.JPLURL,
	}
	if neoID != "" {
		obs.ID = ObservationID(neoID, day)
	}
	if km := it.EstimatedDiameter.Kilometers; km != nil {
		obs.Size = &model.SizeRange{MinKM: float64(km.Min), MaxKM: float64(km.Max)}
	}
	for _, a := range it.Approach {
		if a.Date == day.String() {
			obs.Approach = &model.Approach{
				Time:              a.DateFull,
				VelocityKPS:       float64(a.Velocity.KPS),
				MissDistanceKM:    float64(a.MissDistance.Kilometers),
				MissDistanceLunar: float64(a.MissDistance.Lunar),
				OrbitingBody:      a.OrbitingBody,
			}
			break
		}
	}
	return obs
}

type neoLookup struct {
	ID          string `json:"id"`
	OrbitalData *struct {
		OrbitID            string    `json:"orbit_id"`
		DeterminationDate  string    `json:"orbit_determination_date"`
		Eccentricity       flexFloat `json:"eccentricity"`
		SemiMajorAxis      flexFloat `json:"semi_major_axis"`
		Inclination        flexFloat `json:"inclination"`
		AscendingNodeLong  flexFloat `json:"ascending_node_longitude"`
		PerihelionArgument flexFloat `json:"perihelion_argument"`
		PerihelionDistance flexFloat `json:"perihelion_distance"`
		AphelionDistance   flexFloat `json:"aphelion_distance"`
		OrbitalPeriod      flexFloat `json:"orbital_period"`
		MeanAnomaly        flexFloat `json:"mean_anomaly"`
		MeanMotion         flexFloat `json:"mean_motion"`
		EpochOsculation    flexFloat `json:"epoch_osculation"`
		OrbitClass         *struct {
			Type string `json:"orbit_class_type"`
		} `json:"orbit_class"`
	} `json:"orbital_data"`
}

// Lookup fetches the orbital elements of one object.
func (c *NeoWsClient) Lookup(ctx context.Context, neoID string) (*model.OrbitalElements, error) {
	neoID = strings.TrimSpace(neoID)
	if neoID == "" {
		return nil, fmt.Errorf("neows lookup: empty object id")
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	body, err := c.fetcher.Get(ctx, c.baseURL+"/neo/rest/v1/neo/"+url.PathEscape(neoID)+"?"+q.Encode(), "application/json")
	if err != nil {
		return nil, fmt.Errorf("neows lookup %s: %w", neoID, err)
	}

	var res neoLookup
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("neows lookup %s: decode: %w", neoID, err)
	}
	od := res.OrbitalData
	if od == nil {
		return nil, fmt.Errorf("neows lookup %s: no orbital data", neoID)
	}

	el := &model.OrbitalElements{
		NeoID:                 neoID,
		OrbitID:               od.OrbitID,
		DeterminationDate:     od.DeterminationDate,
		Eccentricity:          float64(od.Eccentricity),
		SemiMajorAxisAU:       float64(od.SemiMajorAxis),
		InclinationDeg:        float64(od.Inclination),
		AscendingNodeDeg:      float64(od.AscendingNodeLong),
		PerihelionArgumentDeg: float64(od.PerihelionArgument),
		PerihelionDistanceAU:  float64(od.PerihelionDistance),
		AphelionDistanceAU:    float64(od.AphelionDistance),
		OrbitalPeriodDays:     float64(od.OrbitalPeriod),
		MeanAnomalyDeg:        float64(od.MeanAnomaly),
		MeanMotionDegPerDay:   float64(od.MeanMotion),
		EpochOsculation:       float64(od.EpochOsculation),
	}
	if od.OrbitClass != nil {
		el.OrbitClass = od.OrbitClass.Type
	}
	return el, nil
}
