package analysisdb

import (
	"encoding/json"

	"github.com/cyclopcam/dbh"
	"github.com/scenesolver/scenesolver/pkg/fusion"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Analysis is one completed analysis of an uploaded image or video
type Analysis struct {
	BaseModel
	CreatedAt      dbh.IntTime                           `json:"createdAt"`
	MediaKind      string                                `json:"mediaKind"`   // "image" or "video"
	ContentType    string                                `json:"contentType"` // eg "video/mp4"
	Filename       string                                `json:"filename"`    // Original filename of the upload, if known
	FinalLabel     string                                `json:"finalLabel"`  // eg "robbery"
	Confidence     int                                   `json:"confidence"`  // 0..100
	Evidence       string                                `json:"evidence"`
	UnitsProcessed int                                   `json:"unitsProcessed"`
	UnitsFailed    int                                   `json:"unitsFailed"`
	DurationMS     int64                                 `json:"durationMS"` // Time spent in the pipeline
	Preview        string                                `json:"preview"`    // Storage key of the annotated preview. Empty if there is none.
	Result         *dbh.JSONField[fusion.IncidentResult] `json:"-"`
}

// MarshalJSON sends the stored result as a plain object
func (a *Analysis) MarshalJSON() ([]byte, error) {
	type plain Analysis
	var result *fusion.IncidentResult
	if a.Result != nil {
		result = &a.Result.Data
	}
	return json.Marshal(struct {
		*plain
		Result *fusion.IncidentResult `json:"result"`
	}{(*plain)(a), result})
}
