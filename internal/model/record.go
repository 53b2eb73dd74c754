package model

// ImageRecord is one daily astronomy picture.
// MediaURL is opaque to the linkage engine; the remaining media fields are
// carried for export only.
type ImageRecord struct {
	ID          string `json:"id"`
	Date        Day    `json:"date"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	MediaURL    string `json:"media_url,omitempty"`
	HDURL       string `json:"hd_url,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// SizeRange is an estimated diameter interval in kilometres.
type SizeRange struct {
	MinKM float64 `json:"min_km"`
	MaxKM float64 `json:"max_km"`
}

// Valid reports whether the bounds are ordered and non-negative.
func (s SizeRange) Valid() bool {
	return s.MinKM >= 0 && s.MinKM <= s.MaxKM
}

// ObservationRecord is one near-Earth object listed on a given day.
// LinkedImageID is only ever set by the date linker.
type ObservationRecord struct {
	ID                string     `json:"id"`
	NeoID             string     `json:"neo_id,omitempty"`
	Date              Day        `json:"date"`
	Name              string     `json:"name"`
	Size              *SizeRange `json:"size,omitempty"`
	Hazardous         bool       `json:"hazardous"`
	AbsoluteMagnitude float64    `json:"absolute_magnitude,omitempty"`
	JPLURL            string     `json:"jpl_url,omitempty"`
	Approach          *Approach  `json:"approach,omitempty"`
	LinkedImageID     *string    `json:"linked_image_id,omitempty"`
}

// Approach is the close approach listed for an observation's date.
type Approach struct {
	Time              string  `json:"time,omitempty"` // "2025-Dec-01 14:05" as published
	VelocityKPS       float64 `json:"velocity_kps"`
	MissDistanceKM    float64 `json:"miss_distance_km"`
	MissDistanceLunar float64 `json:"miss_distance_lunar"`
	OrbitingBody      string  `json:"orbiting_body,omitempty"`
}

// OrbitalElements are the osculating elements NeoWs publishes per object.
type OrbitalElements struct {
	NeoID                 string  `json:"neo_id"`
	OrbitID               string  `json:"orbit_id,omitempty"`
	DeterminationDate     string  `json:"orbit_determination_date,omitempty"`
	Eccentricity          float64 `json:"eccentricity"`
	SemiMajorAxisAU       float64 `json:"semi_major_axis_au"`
	InclinationDeg        float64 `json:"inclination_deg"`
	AscendingNodeDeg      float64 `json:"ascending_node_longitude_deg"`
	PerihelionArgumentDeg float64 `json:"perihelion_argument_deg"`
	PerihelionDistanceAU  float64 `json:"perihelion_distance_au"`
	AphelionDistanceAU    float64 `json:"aphelion_distance_au"`
	OrbitalPeriodDays     float64 `json:"orbital_period_days"`
	MeanAnomalyDeg        float64 `json:"mean_anomaly_deg"`
	MeanMotionDegPerDay   float64 `json:"mean_motion_deg_per_day"`
	EpochOsculation       float64 `json:"epoch_osculation"`
	OrbitClass            string  `json:"orbit_class,omitempty"`
}

// Linked reports whether the observation carries an exact-date link.
func (o ObservationRecord) Linked() bool {
	return o.LinkedImageID != nil
}

// WithLink returns a copy of o linked to imageID. Passing "" clears the link.
func (o ObservationRecord) WithLink(imageID string) ObservationRecord {
	if imageID == "" {
		o.LinkedImageID = nil
		return o
	}
	id := imageID
	o.LinkedImageID = &id
	return o
}
