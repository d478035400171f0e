// Package model defines the typed entities produced by the Atlas pipeline:
// geographic rollups, tensions (anomalies), signatures (patterns), identity
// lifecycles and emergent threats. Entities serialize to the documented JSON
// artifact schema at the boundary only.
package model

import "time"

// Archetype is the behavioral classification of a location.
type Archetype string

const (
	ArchetypeGhostFarm  Archetype = "GHOST_FARM"
	ArchetypeCrossroads Archetype = "CROSSROADS"
	ArchetypeNursery    Archetype = "NURSERY"
	ArchetypeDormant    Archetype = "DORMANT"
	ArchetypeBedrock    Archetype = "BEDROCK"
)

// TensionType classifies a detected anomaly.
type TensionType string

const (
	TensionCreationWithoutMotion TensionType = "CREATION_WITHOUT_MOTION"
	TensionMotionWithoutCreation TensionType = "MOTION_WITHOUT_CREATION"
	TensionTemporalShock         TensionType = "TEMPORAL_SHOCK"
)

// SignatureType classifies a recurring behavioral pattern.
type SignatureType string

const (
	SignatureTemporalSpike     SignatureType = "TEMPORAL_SPIKE"
	SignatureGhostFarmPattern  SignatureType = "GHOST_FARM_PATTERN"
	SignatureCoordinatedUpdate SignatureType = "COORDINATED_UPDATE"
)

// LifecycleStage classifies a birth cohort's lifecycle.
type LifecycleStage string

const (
	StageNewborn LifecycleStage = "NEWBORN"
	StageActive  LifecycleStage = "ACTIVE"
	StageDormant LifecycleStage = "DORMANT"
	StageGhost   LifecycleStage = "GHOST"
)

// ThreatType classifies an inferred composite threat.
type ThreatType string

const (
	ThreatIdentityFraudRing  ThreatType = "IDENTITY_FRAUD_RING"
	ThreatCoordinatedAnomaly ThreatType = "COORDINATED_ANOMALY"
)

// ThreatStatus is the review status of a threat.
type ThreatStatus string

const (
	ThreatStatusActive        ThreatStatus = "ACTIVE"
	ThreatStatusMonitoring    ThreatStatus = "MONITORING"
	ThreatStatusResolved      ThreatStatus = "RESOLVED"
	ThreatStatusFalsePositive ThreatStatus = "FALSE_POSITIVE"
)

// RawRecord is one per-date per-location row after the category extracts have
// been outer-merged. Missing categories are zero-filled.
type RawRecord struct {
	Date     time.Time `json:"date"`
	Region   string    `json:"region"`
	District string    `json:"district"`
	Location string    `json:"location"`

	// Creation (enrolment) counters by age band.
	CreationChild int64 `json:"age_0_5"`
	CreationYouth int64 `json:"age_5_17"`
	CreationAdult int64 `json:"age_18_greater"`

	// Motion (demographic update) counters.
	MotionYouth int64 `json:"demo_age_5_17"`
	MotionAdult int64 `json:"demo_age_17_"`

	// Persistence (biometric update) counters.
	PersistenceYouth int64 `json:"bio_age_5_17"`
	PersistenceAdult int64 `json:"bio_age_17_"`
}

// TotalCreation returns the summed creation counters of the row.
func (r *RawRecord) TotalCreation() int64 {
	return r.CreationChild + r.CreationYouth + r.CreationAdult
}

// TotalMotion returns the summed motion counters of the row.
func (r *RawRecord) TotalMotion() int64 {
	return r.MotionYouth + r.MotionAdult
}

// TotalPersistence returns the summed persistence counters of the row.
func (r *RawRecord) TotalPersistence() int64 {
	return r.PersistenceYouth + r.PersistenceAdult
}

// LocationRecord is the location-level rollup with derived metrics. It is
// created by the aggregator and immutable once feature engineering completes.
type LocationRecord struct {
	Region   string `json:"region" parquet:"region"`
	District string `json:"district" parquet:"district"`
	Location string `json:"location" parquet:"location"`

	CreationChild    int64 `json:"age_0_5" parquet:"age_0_5"`
	CreationYouth    int64 `json:"age_5_17" parquet:"age_5_17"`
	CreationAdult    int64 `json:"age_18_greater" parquet:"age_18_greater"`
	TotalCreation    int64 `json:"total_creation" parquet:"total_creation"`
	TotalMotion      int64 `json:"total_motion" parquet:"total_motion"`
	TotalPersistence int64 `json:"total_persistence" parquet:"total_persistence"`
	DaysActive       int   `json:"days_active" parquet:"days_active"`

	ChildRatio               float64 `json:"child_ratio" parquet:"child_ratio"`
	YouthRatio               float64 `json:"youth_ratio" parquet:"youth_ratio"`
	AdultRatio               float64 `json:"adult_ratio" parquet:"adult_ratio"`
	MotionIntensity          float64 `json:"motion_intensity" parquet:"motion_intensity"`
	PersistenceIntensity     float64 `json:"persistence_intensity" parquet:"persistence_intensity"`
	CreationVelocity         float64 `json:"creation_velocity" parquet:"creation_velocity"`
	MotionVelocity           float64 `json:"motion_velocity" parquet:"motion_velocity"`
	PersistenceVelocity      float64 `json:"persistence_velocity" parquet:"persistence_velocity"`
	MotionToPersistenceRatio float64 `json:"motion_to_persistence_ratio" parquet:"motion_to_persistence_ratio"`

	Archetype Archetype `json:"archetype" parquet:"archetype"`
}

// ID returns the stable graph identifier of the location.
func (r *LocationRecord) ID() string {
	return LocationID(r.Location)
}

// Rollup is a district- or region-level aggregation row. District and region
// counters must equal the sum of their constituent locations.
type Rollup struct {
	Region           string `json:"region"`
	District         string `json:"district,omitempty"`
	TotalCreation    int64  `json:"total_creation"`
	TotalMotion      int64  `json:"total_motion"`
	TotalPersistence int64  `json:"total_persistence"`
	DaysActive       int    `json:"days_active"`
}

// Tension is a statistically detected anomaly bound to exactly one location
// and one detection event.
type Tension struct {
	ID              string      `json:"id"`
	LocationID      string      `json:"location_id"`
	Type            TensionType `json:"tension_type"`
	Severity        float64     `json:"severity"` // 0-100
	ZScore          float64     `json:"z_score"`
	Description     string      `json:"description"`
	DetectedAt      time.Time   `json:"detected_at"`
	ObservedValue   float64     `json:"observed_value"`
	ExpectedValue   float64     `json:"expected_value"`
	DetectionMethod string      `json:"detection_method"`
	Reviewed        bool        `json:"reviewed"` // mutable post-hoc by reviewers
}

// MagnitudeRange summarizes the creation velocity of the locations a
// signature covers.
type MagnitudeRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Signature is a recurring behavioral pattern across locations and dates.
type Signature struct {
	ID                string          `json:"id"`
	Type              SignatureType   `json:"signature_type"`
	Description       string          `json:"description"`
	Hash              string          `json:"signature_hash"`
	FirstObserved     time.Time       `json:"first_observed"`
	LastObserved      time.Time       `json:"last_observed"`
	OccurrenceCount   int             `json:"occurrence_count"`
	LocationsInvolved []string        `json:"locations_involved"` // bounded at 20
	Confidence        float64         `json:"confidence_score"`   // [0,1]
	Magnitude         *MagnitudeRange `json:"magnitude_range,omitempty"`
	PatternDate       string          `json:"pattern_date,omitempty"` // coordinated updates only
}

// Lifecycle tracks one (date, location) birth cohort.
type Lifecycle struct {
	ID                 string           `json:"id"`
	OriginLocationID   string           `json:"origin_location_id"`
	BirthDate          time.Time        `json:"birth_date"`
	CohortSize         int64            `json:"cohort_size"`
	AgeDistribution    map[string]int64 `json:"age_group_distribution"`
	SubsequentMotion   int64            `json:"subsequent_motion_events"`
	SubsequentPersists int64            `json:"subsequent_persistence_events"`
	DaysSinceBirth     int              `json:"days_since_birth"`
	MotionFrequency    float64          `json:"motion_frequency"`
	Stage              LifecycleStage   `json:"lifecycle_stage"`
	Region             string           `json:"region"`
	District           string           `json:"district"`
	Location           string           `json:"location"`
}

// Threat is a composite, rule-inferred risk narrative backed by an evidence
// chain of tensions and signatures.
type Threat struct {
	ID                string       `json:"id"`
	Type              ThreatType   `json:"threat_type"`
	Title             string       `json:"title"`
	Narrative         string       `json:"narrative"`
	SeverityLevel     int          `json:"severity_level"` // 1-5
	Confidence        float64      `json:"confidence"`     // [0,1]
	FirstDetected     time.Time    `json:"first_detected"`
	LastUpdated       time.Time    `json:"last_updated"`
	Status            ThreatStatus `json:"status"`
	TensionIDs        []string     `json:"related_tensions"`   // capped at 10
	SignatureIDs      []string     `json:"related_signatures"` // capped at 10
	AffectedLocations []string     `json:"affected_locations"` // capped at 20
	GeographicSpread  int          `json:"geographic_spread"`
	TemporalSpanDays  int          `json:"temporal_span_days"`
	EstimatedEntities float64      `json:"estimated_entities_involved"`
}

// Result carries the output of every pipeline stage. Each stage returns a
// new value derived from its input rather than mutating shared state, so
// stages can be tested in isolation.
type Result struct {
	Daily     []RawRecord      `json:"-"`
	Locations []LocationRecord `json:"locations"`
	Districts []Rollup         `json:"districts"`
	Regions   []Rollup         `json:"regions"`
	Tensions  []Tension        `json:"tensions"`
	Signatures []Signature     `json:"signatures"`
	// Occurrences maps signature ID to its sorted, de-duplicated occurrence
	// dates, used for precedence inference during publication.
	Occurrences map[string][]time.Time `json:"-"`
	Lifecycles  []Lifecycle            `json:"lifecycles"`
	Threats     []Threat               `json:"threats"`
}
