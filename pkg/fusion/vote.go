package fusion

import (
	"math"

	"github.com/scenesolver/scenesolver/pkg/nn"
)

// ImageConfidencePercent is reported for single images, which are never voted on.
// Video confidence is the share of frames that voted for the winner, so the two are not comparable.
const ImageConfidencePercent = 95

// Vote is the outcome of resolving a video's per-frame labels
type Vote struct {
	Label             nn.SceneClass
	ConfidencePercent int
}

// Resolve picks the final label of a video.
// Any crime vote outranks normal, no matter how few frames it came from.
// Ties go to the label that was seen first.
func Resolve(a *Aggregate) (Vote, error) {
	return ResolveCounts(a.LabelCounts(), a.UnitsProcessed)
}

// ResolveCounts is Resolve, given counts in first-seen order
func ResolveCounts(counts []LabelCount, unitsProcessed int) (Vote, error) {
	if unitsProcessed == 0 || len(counts) == 0 {
		return Vote{}, ErrNoUnitsProcessed
	}
	best := -1
	for i, c := range counts {
		if c.Label.IsCrime() && (best == -1 || c.Count > counts[best].Count) {
			best = i
		}
	}
	if best == -1 {
		for i, c := range counts {
			if best == -1 || c.Count > counts[best].Count {
				best = i
			}
		}
	}
	winner := counts[best]
	return Vote{
		Label:             winner.Label,
		ConfidencePercent: Percent(winner.Count, unitsProcessed),
	}, nil
}

// Percent returns round((n / total) * 100), rounding halves to even.
// The fraction is taken first, so a ratio like 23/40 lands just below the half (57, not 58).
func Percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.RoundToEven(float64(n) / float64(total) * 100))
}
