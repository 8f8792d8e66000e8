package analysisdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/fusion"
	"github.com/scenesolver/scenesolver/server/analysis"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("Analysis not found")

// Maximum number of records returned by List
const MaxListLimit = 1000

// AnalysisDB stores the history of analyses
type AnalysisDB struct {
	Log logs.Log
	DB  *gorm.DB

	// If greater than zero, then the oldest analyses beyond this count are deleted by Purge
	MaxHistory int
}

// Open or create the analysis DB
func Open(log logs.Log, cfg dbh.DBConfig) (*AnalysisDB, error) {
	if cfg.Driver == dbh.DriverSqlite {
		os.MkdirAll(filepath.Dir(cfg.Database), 0770)
	}
	log.Infof("Opening analysis DB %v", cfg.LogSafeDescription())
	db, err := dbh.OpenDB(log, cfg, Migrations(log, cfg.Driver), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open analysis database: %w", err)
	}
	return &AnalysisDB{
		Log: log,
		DB:  db,
	}, nil
}

// MakeAnalysis builds the record of an analysis outcome
func MakeAnalysis(outcome *analysis.Outcome, contentType, filename string) *Analysis {
	var result dbh.JSONField[fusion.IncidentResult]
	result.Data = *outcome.Result
	return &Analysis{
		CreatedAt:      dbh.MakeIntTime(time.Now()),
		MediaKind:      outcome.Media.String(),
		ContentType:    contentType,
		Filename:       filepath.Base(filename),
		FinalLabel:     string(outcome.Result.FinalLabel),
		Confidence:     outcome.Result.ConfidencePercent,
		Evidence:       outcome.Result.Evidence,
		UnitsProcessed: outcome.UnitsProcessed,
		UnitsFailed:    outcome.UnitsFailed,
		DurationMS:     outcome.Duration.Milliseconds(),
		Result:         &result,
	}
}

// Save inserts a new analysis, and populates its ID
func (a *AnalysisDB) Save(rec *Analysis) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = dbh.MakeIntTime(time.Now())
	}
	if err := a.DB.Create(rec).Error; err != nil {
		return fmt.Errorf("Failed to save analysis: %w", err)
	}
	return nil
}

// List returns the most recent analyses, newest first.
// If label is not empty, then only analyses with that final label are returned.
func (a *AnalysisDB) List(limit int, label string) ([]*Analysis, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := a.DB.Order("id DESC").Limit(limit)
	if label != "" {
		q = q.Where("final_label = ?", label)
	}
	records := []*Analysis{}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns a single analysis, or ErrNotFound
func (a *AnalysisDB) Get(id int64) (*Analysis, error) {
	rec := Analysis{}
	if err := a.DB.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Purge deletes the oldest analyses so that at most MaxHistory remain.
// The preview keys of the deleted analyses are returned, so that the caller can delete those blobs.
func (a *AnalysisDB) Purge() ([]string, error) {
	if a.MaxHistory <= 0 {
		return nil, nil
	}
	// Find the oldest record that we keep
	var keep []int64
	if err := a.DB.Model(&Analysis{}).Order("id DESC").Offset(a.MaxHistory-1).Limit(1).Pluck("id", &keep).Error; err != nil {
		return nil, err
	}
	if len(keep) == 0 {
		return nil, nil
	}
	cutoff := keep[0]
	var previews []string
	if err := a.DB.Model(&Analysis{}).Where("id < ? AND preview <> ''", cutoff).Pluck("preview", &previews).Error; err != nil {
		return nil, err
	}
	res := a.DB.Where("id < ?", cutoff).Delete(&Analysis{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 0 {
		a.Log.Infof("Purged %v old analyses", res.RowsAffected)
	}
	return previews, nil
}

func (a *AnalysisDB) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
