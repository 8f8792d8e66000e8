package fusion

import (
	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn"
)

// UnitOutcome is the result-or-error of processing one unit.
// Exactly one of Result or Err is set.
type UnitOutcome struct {
	Index   int
	Result  *UnitResult
	Caption string
	Err     error
}

type LabelCount struct {
	Label nn.SceneClass
	Count int
}

// Aggregate accumulates unit outcomes for one request.
// It is owned by a single request, and is not safe for concurrent use.
type Aggregate struct {
	log            logs.Log
	counts         []LabelCount // In the order that each label was first seen
	Detections     []Detection  // Every detection from every processed unit, in processing order
	Captions       []string     // One per processed unit
	UnitsProcessed int
	UnitsFailed    int
}

func NewAggregate(log logs.Log) *Aggregate {
	return &Aggregate{
		log: log,
	}
}

// Fold adds one outcome to the aggregate, and returns true if it was counted.
// A failed unit is logged and contributes nothing at all.
func (a *Aggregate) Fold(o UnitOutcome) bool {
	if o.Err != nil || o.Result == nil {
		a.UnitsFailed++
		if o.Err != nil {
			a.log.Warnf("Skipping frame %v: %v", o.Index, o.Err)
		} else {
			a.log.Warnf("Skipping frame %v: no result", o.Index)
		}
		return false
	}
	a.increment(o.Result.Label)
	a.Detections = append(a.Detections, o.Result.Detections...)
	a.Captions = append(a.Captions, o.Caption)
	a.UnitsProcessed++
	return true
}

func (a *Aggregate) increment(label nn.SceneClass) {
	for i := range a.counts {
		if a.counts[i].Label == label {
			a.counts[i].Count++
			return
		}
	}
	a.counts = append(a.counts, LabelCount{Label: label, Count: 1})
}

// LabelCounts returns a copy of the vote counts, in first-seen order
func (a *Aggregate) LabelCounts() []LabelCount {
	return append([]LabelCount(nil), a.counts...)
}

// Count returns the number of votes for label
func (a *Aggregate) Count(label nn.SceneClass) int {
	for _, c := range a.counts {
		if c.Label == label {
			return c.Count
		}
	}
	return 0
}

// SeenObjects is the pooled set of object labels across all processed units
func (a *Aggregate) SeenObjects() ObjectSet {
	return ObjectsSeen(a.Detections)
}
