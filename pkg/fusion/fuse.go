package fusion

import (
	"context"

	"github.com/cyclopcam/logs"
)

// Fuser runs the stages that follow aggregation: voting, evidence, narrative and composition
type Fuser struct {
	log      logs.Log
	Narrator *Narrator
}

func NewFuser(log logs.Log, narrator *Narrator) *Fuser {
	return &Fuser{
		log:      log,
		Narrator: narrator,
	}
}

// FuseVideo turns a video's aggregate into its result.
// Returns ErrNoUnitsProcessed if no frame made it through.
func (f *Fuser) FuseVideo(ctx context.Context, agg *Aggregate) (*IncidentResult, error) {
	vote, err := Resolve(agg)
	if err != nil {
		return nil, err
	}
	evidence := SelectEvidence(vote.Label, agg.SeenObjects())
	story, meaningful := f.Narrator.Story(ctx, agg.Captions)
	f.log.Infof("Video fused: %v at %v%% from %v frames (%v skipped), evidence '%v', narrative %v",
		vote.Label, vote.ConfidencePercent, agg.UnitsProcessed, agg.UnitsFailed, evidence, meaningful)
	return ComposeVideo(vote, evidence, story, agg.Detections), nil
}

// FuseImage turns a single image's unit result and caption into its result
func (f *Fuser) FuseImage(unit *UnitResult, caption string) *IncidentResult {
	r := ComposeImage(unit, caption)
	f.log.Infof("Image fused: %v (soft label %v), evidence '%v', %v objects", r.FinalLabel, unit.SoftLabel, r.Evidence, len(unit.Detections))
	return r
}
