// Package datastore persists produced artifacts to a queryable SQLite store
// for downstream consumers. The JSON artifact files remain the canonical
// output; this store serves filtered reads (type, severity, confidence,
// status, location) without loading whole files.
package datastore

import (
	"encoding/json"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/model"
)

// TensionRow is the stored form of a tension with its filterable fields
// lifted into columns.
type TensionRow struct {
	ID         string    `gorm:"primaryKey"`
	LocationID string    `gorm:"index"`
	Type       string    `gorm:"index"`
	Severity   float64   `gorm:"index"`
	DetectedAt time.Time `gorm:"index"`
	Reviewed   bool
	Payload    string // full JSON document
}

// SignatureRow is the stored form of a signature.
type SignatureRow struct {
	ID            string  `gorm:"primaryKey"`
	Type          string  `gorm:"index"`
	Confidence    float64 `gorm:"index"`
	FirstObserved time.Time
	LastObserved  time.Time
	Payload       string
}

// LifecycleRow is the stored form of a lifecycle.
type LifecycleRow struct {
	ID         string `gorm:"primaryKey"`
	LocationID string `gorm:"index"`
	Stage      string `gorm:"index"`
	BirthDate  time.Time
	CohortSize int64
	Payload    string
}

// ThreatRow is the stored form of a threat.
type ThreatRow struct {
	ID            string  `gorm:"primaryKey"`
	Type          string  `gorm:"index"`
	SeverityLevel int     `gorm:"index"`
	Confidence    float64 `gorm:"index"`
	Status        string  `gorm:"index"`
	FirstDetected time.Time
	Payload       string
}

// Interface abstracts the artifact store for consumers and tests.
type Interface interface {
	Open() error
	Close() error
	SaveResults(result *model.Result) error
	Tensions(tensionType string, minSeverity float64) ([]model.Tension, error)
	Signatures(signatureType string, minConfidence float64) ([]model.Signature, error)
	Lifecycles(stage, locationID string) ([]model.Lifecycle, error)
	Threats(status string, minSeverity int) ([]model.Threat, error)
	UpdateThreatStatus(id string, status model.ThreatStatus) error
}

// Store implements Interface over a GORM SQLite database.
type Store struct {
	Path string
	DB   *gorm.DB
}

// New creates a Store at path. Call Open before use.
func New(path string) *Store {
	return &Store{Path: path}
}

// Open connects and migrates the schema.
func (s *Store) Open() error {
	db, err := gorm.Open(sqlite.Open(s.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", s.Path).
			Build()
	}
	if err := db.AutoMigrate(&TensionRow{}, &SignatureRow{}, &LifecycleRow{}, &ThreatRow{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	s.DB = db
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResults upserts all artifacts from one run in a single transaction.
func (s *Store) SaveResults(result *model.Result) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range result.Tensions {
			t := &result.Tensions[i]
			row := TensionRow{
				ID:         t.ID,
				LocationID: t.LocationID,
				Type:       string(t.Type),
				Severity:   t.Severity,
				DetectedAt: t.DetectedAt,
				Reviewed:   t.Reviewed,
				Payload:    mustJSON(t),
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for i := range result.Signatures {
			sig := &result.Signatures[i]
			row := SignatureRow{
				ID:            sig.ID,
				Type:          string(sig.Type),
				Confidence:    sig.Confidence,
				FirstObserved: sig.FirstObserved,
				LastObserved:  sig.LastObserved,
				Payload:       mustJSON(sig),
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for i := range result.Lifecycles {
			l := &result.Lifecycles[i]
			row := LifecycleRow{
				ID:         l.ID,
				LocationID: l.OriginLocationID,
				Stage:      string(l.Stage),
				BirthDate:  l.BirthDate,
				CohortSize: l.CohortSize,
				Payload:    mustJSON(l),
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for i := range result.Threats {
			t := &result.Threats[i]
			row := ThreatRow{
				ID:            t.ID,
				Type:          string(t.Type),
				SeverityLevel: t.SeverityLevel,
				Confidence:    t.Confidence,
				Status:        string(t.Status),
				FirstDetected: t.FirstDetected,
				Payload:       mustJSON(t),
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Tensions returns tensions filtered by type (empty for all) and minimum
// severity, most severe first.
func (s *Store) Tensions(tensionType string, minSeverity float64) ([]model.Tension, error) {
	q := s.DB.Model(&TensionRow{}).Where("severity >= ?", minSeverity)
	if tensionType != "" {
		q = q.Where("type = ?", tensionType)
	}
	var rows []TensionRow
	if err := q.Order("severity DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Tension, 0, len(rows))
	for i := range rows {
		var t model.Tension
		if err := json.Unmarshal([]byte(rows[i].Payload), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Signatures returns signatures filtered by type and minimum confidence.
func (s *Store) Signatures(signatureType string, minConfidence float64) ([]model.Signature, error) {
	q := s.DB.Model(&SignatureRow{}).Where("confidence >= ?", minConfidence)
	if signatureType != "" {
		q = q.Where("type = ?", signatureType)
	}
	var rows []SignatureRow
	if err := q.Order("confidence DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Signature, 0, len(rows))
	for i := range rows {
		var sig model.Signature
		if err := json.Unmarshal([]byte(rows[i].Payload), &sig); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// Lifecycles returns lifecycles filtered by stage and origin location, both
// optional.
func (s *Store) Lifecycles(stage, locationID string) ([]model.Lifecycle, error) {
	q := s.DB.Model(&LifecycleRow{})
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if locationID != "" {
		q = q.Where("location_id = ?", locationID)
	}
	var rows []LifecycleRow
	if err := q.Order("birth_date").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Lifecycle, 0, len(rows))
	for i := range rows {
		var l model.Lifecycle
		if err := json.Unmarshal([]byte(rows[i].Payload), &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Threats returns threats filtered by status (empty for all) and minimum
// severity level, most severe first.
func (s *Store) Threats(status string, minSeverity int) ([]model.Threat, error) {
	q := s.DB.Model(&ThreatRow{}).Where("severity_level >= ?", minSeverity)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []ThreatRow
	if err := q.Order("severity_level DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Threat, 0, len(rows))
	for i := range rows {
		var t model.Threat
		if err := json.Unmarshal([]byte(rows[i].Payload), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateThreatStatus moves a threat through its review lifecycle
// (ACTIVE/MONITORING/RESOLVED/FALSE_POSITIVE).
func (s *Store) UpdateThreatStatus(id string, status model.ThreatStatus) error {
	var row ThreatRow
	if err := s.DB.First(&row, "id = ?", id).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("id", id).
			Build()
	}
	var t model.Threat
	if err := json.Unmarshal([]byte(row.Payload), &t); err != nil {
		return err
	}
	t.Status = status
	t.LastUpdated = time.Now().UTC()
	row.Status = string(status)
	row.Payload = mustJSON(&t)
	return s.DB.Save(&row).Error
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Model types are plain structs; marshal cannot fail for them.
		return "{}"
	}
	return string(b)
}
