package fusion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/pkg/nn/nntest"
	"github.com/stretchr/testify/require"
)

func det(object string, conf float32) Detection {
	return Detection{Object: object, Confidence: conf, Box: nn.MakeRect(10, 20, 30, 40)}
}

func unit(label nn.SceneClass, dets ...Detection) UnitOutcome {
	return UnitOutcome{Result: &UnitResult{SoftLabel: label, Label: Override(label, dets), Detections: dets}}
}

func TestOverride(t *testing.T) {
	require.Equal(t, nn.SceneShoplifting, Override(nn.SceneShoplifting, nil))
	require.Equal(t, nn.SceneRobbery, Override(nn.SceneNormal, []Detection{det("knife", 0.3)}))
	require.Equal(t, nn.SceneRobbery, Override(nn.SceneFighting, []Detection{det("fire", 0.9), det("fighting", 0.9), det("gun", 0.5)}))
	require.Equal(t, nn.SceneFighting, Override(nn.SceneExplosion, []Detection{det("smoke", 0.9), det("fighting", 0.9)}))
	require.Equal(t, nn.SceneExplosion, Override(nn.SceneNormal, []Detection{det("smoke", 0.9)}))
	// shoplifting evidence does not override anything
	require.Equal(t, nn.SceneNormal, Override(nn.SceneNormal, []Detection{det("shoplifting", 0.9)}))
}

func TestUnitClassifier(t *testing.T) {
	script := &nntest.Script{
		Frames: map[string]nntest.Frame{
			"a": {Scene: nn.SceneNormal, Detections: []nn.ObjectDetection{
				nntest.Detect(nn.EvidenceGun, 0.876, 1, 2, 30, 40),
				nntest.Detect(nn.EvidenceSmoke, 0.5, 5, 5, 5, 10), // degenerate
			}},
			"zero": {Scene: nn.SceneShoplifting, Detections: []nn.ObjectDetection{
				nntest.Detect(nn.EvidenceGun, 0.7, 8, 8, 8, 20), // zero width
			}},
			"b":   {Scene: nn.SceneFighting},
			"bad": {Scene: nn.SceneNormal, Detections: []nn.ObjectDetection{nntest.Detect(17, 0.9, 1, 1, 2, 2)}},
			"err": {Err: errors.New("boom")},
			"odd": {Scene: "parade"},
		},
	}
	uc := NewUnitClassifier(nntest.Services(script, &nntest.Summarizer{}))
	ctx := context.Background()

	r, err := uc.Classify(ctx, &nn.Image{Data: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, nn.SceneNormal, r.SoftLabel)
	require.Equal(t, nn.SceneRobbery, r.Label)
	require.Equal(t, 2, len(r.Detections))
	require.Equal(t, "gun", r.Detections[0].Object)
	require.Equal(t, 88, r.Detections[0].Match())

	// A zero-width gun box still forces robbery, and still counts as evidence,
	// but it is not reported as a found object
	r, err = uc.Classify(ctx, &nn.Image{Data: []byte("zero")})
	require.NoError(t, err)
	require.Equal(t, nn.SceneRobbery, r.Label)
	img := ComposeImage(r, "a man in a shop")
	require.Equal(t, "gun", img.Evidence)
	require.Empty(t, img.FoundObjects)

	r, err = uc.Classify(ctx, &nn.Image{Data: []byte("b")})
	require.NoError(t, err)
	require.Equal(t, nn.SceneFighting, r.Label)
	require.Empty(t, r.Detections)

	_, err = uc.Classify(ctx, &nn.Image{Data: []byte("bad")})
	require.Error(t, err)
	_, err = uc.Classify(ctx, &nn.Image{Data: []byte("err")})
	require.ErrorContains(t, err, "boom")
	_, err = uc.Classify(ctx, &nn.Image{Data: []byte("odd")})
	require.Error(t, err)
}

func TestDetectionJSON(t *testing.T) {
	d := Detection{Object: "knife", Confidence: 0.455, Box: nn.MakeRect(1, 2, 3, 4)}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `{"object":"knife","match":46,"box":[1,2,3,4]}`, string(b))

	var back Detection
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, "knife", back.Object)
	require.Equal(t, 46, back.Match())
	require.Equal(t, d.Box, back.Box)
}

func TestAggregateSkipsFailedUnits(t *testing.T) {
	agg := NewAggregate(logs.NewTestingLog(t))
	require.True(t, agg.Fold(unit(nn.SceneNormal, det("smoke", 0.5))))
	require.False(t, agg.Fold(UnitOutcome{Index: 15, Err: &UnitError{Index: 15, Err: errors.New("decode")}}))
	require.False(t, agg.Fold(UnitOutcome{Index: 30}))
	require.True(t, agg.Fold(unit(nn.SceneFighting)))

	require.Equal(t, 2, agg.UnitsProcessed)
	require.Equal(t, 2, agg.UnitsFailed)
	require.Equal(t, 2, len(agg.Captions))
	require.Equal(t, 1, len(agg.Detections))
	total := 0
	for _, c := range agg.LabelCounts() {
		total += c.Count
	}
	require.Equal(t, agg.UnitsProcessed, total)
	require.Equal(t, []LabelCount{{nn.SceneExplosion, 1}, {nn.SceneFighting, 1}}, agg.LabelCounts())
}

func TestAggregateIdenticalUnits(t *testing.T) {
	agg := NewAggregate(logs.NewTestingLog(t))
	for i := 0; i < 7; i++ {
		agg.Fold(unit(nn.SceneShoplifting))
	}
	require.Equal(t, []LabelCount{{nn.SceneShoplifting, 7}}, agg.LabelCounts())
	vote, err := Resolve(agg)
	require.NoError(t, err)
	require.Equal(t, Vote{nn.SceneShoplifting, 100}, vote)
}

func TestResolve(t *testing.T) {
	// A single crime vote beats many normal votes
	v, err := ResolveCounts([]LabelCount{{nn.SceneNormal, 9}, {nn.SceneExplosion, 1}}, 10)
	require.NoError(t, err)
	require.Equal(t, Vote{nn.SceneExplosion, 10}, v)

	// Ties go to the first label seen
	v, err = ResolveCounts([]LabelCount{{nn.SceneNormal, 4}, {nn.SceneShoplifting, 2}, {nn.SceneFighting, 2}}, 8)
	require.NoError(t, err)
	require.Equal(t, Vote{nn.SceneShoplifting, 25}, v)

	v, err = ResolveCounts([]LabelCount{{nn.SceneNormal, 3}}, 3)
	require.NoError(t, err)
	require.Equal(t, Vote{nn.SceneNormal, 100}, v)

	_, err = ResolveCounts(nil, 0)
	require.ErrorIs(t, err, ErrNoUnitsProcessed)
	_, err = Resolve(NewAggregate(logs.NewTestingLog(t)))
	require.ErrorIs(t, err, ErrNoUnitsProcessed)
}

func TestPercent(t *testing.T) {
	require.Equal(t, 67, Percent(2, 3))
	require.Equal(t, 33, Percent(1, 3))
	require.Equal(t, 12, Percent(1, 8)) // 12.5 rounds to even
	require.Equal(t, 38, Percent(3, 8)) // 37.5 rounds to even
	// The fraction is computed first, so these fall just short of the half
	require.Equal(t, 57, Percent(23, 40))
	require.Equal(t, 57, Percent(46, 80))
	require.Equal(t, 55, Percent(109, 200))
	require.Equal(t, 0, Percent(0, 0))
}

func TestSelectEvidence(t *testing.T) {
	seen := func(labels ...string) ObjectSet {
		s := ObjectSet{}
		for _, l := range labels {
			s[l] = true
		}
		return s
	}
	require.Equal(t, "fire", SelectEvidence(nn.SceneExplosion, seen("smoke", "fire")))
	require.Equal(t, "smoke", SelectEvidence(nn.SceneExplosion, seen("smoke")))
	require.Equal(t, "fire detected", SelectEvidence(nn.SceneExplosion, seen()))
	require.Equal(t, "gun", SelectEvidence(nn.SceneRobbery, seen("knife", "gun")))
	require.Equal(t, "knife", SelectEvidence(nn.SceneRobbery, seen("knife")))
	require.Equal(t, "weapon spotted", SelectEvidence(nn.SceneRobbery, seen("fire")))
	require.Equal(t, "violent behavior detected", SelectEvidence(nn.SceneFighting, seen("fighting")))
	require.Equal(t, "signs of a physical altercation", SelectEvidence(nn.SceneFighting, seen()))
	require.Equal(t, "suspicious activity consistent with shoplifting", SelectEvidence(nn.SceneShoplifting, seen("gun")))
	require.Equal(t, "none", SelectEvidence(nn.SceneNormal, seen("gun")))
}

func TestNarrator(t *testing.T) {
	ctx := context.Background()
	sum := &nntest.Summarizer{Summary: " Two men argue outside a store. "}
	n := NewNarrator(logs.NewTestingLog(t), sum)

	story, ok := n.Story(ctx, []string{"a book on a shelf"})
	require.False(t, ok)
	require.Equal(t, NoActivityStory, story)

	story, ok = n.Story(ctx, []string{"A VIDEO GAME screenshot", "", "a cover of a magazine"})
	require.False(t, ok)
	require.Equal(t, NoActivityStory, story)

	story, ok = n.Story(ctx, []string{"a", "b", "a"})
	require.True(t, ok)
	require.Equal(t, "a b", story)
	require.Empty(t, sum.Inputs())

	// The short-story threshold counts characters, not bytes
	accented := strings.Repeat("é", MinSummarizeChars-1)
	story, ok = n.Story(ctx, []string{accented})
	require.True(t, ok)
	require.Equal(t, accented, story)
	require.Empty(t, sum.Inputs())

	long := []string{
		"a man standing in front of a store holding a bag",
		"two men arguing on a sidewalk at night",
		"a man standing in front of a store holding a bag",
	}
	story, ok = n.Story(ctx, long)
	require.True(t, ok)
	require.Equal(t, "Two men argue outside a store.", story)
	require.Equal(t, []string{long[0] + " " + long[1]}, sum.Inputs())

	// Input is truncated to the summarizer's limit
	n.MaxInputChars = 70
	_, _ = n.Story(ctx, long)
	inputs := sum.Inputs()
	require.Equal(t, 70, len(inputs[len(inputs)-1]))

	// Summarizer failure never escapes
	failing := NewNarrator(logs.NewTestingLog(t), &nntest.Summarizer{Fail: true})
	story, ok = failing.Story(ctx, long)
	require.True(t, ok)
	require.Equal(t, NarrativeFailedStory, story)
}

func TestTruncateChars(t *testing.T) {
	require.Equal(t, "héll", truncateChars("héllo", 4))
	require.Equal(t, "héllo", truncateChars("héllo", 5))
	require.Equal(t, "héllo", truncateChars("héllo", 0))
}

func TestUniqueObjects(t *testing.T) {
	a := det("gun", 0.4)
	b := det("fire", 0.6)
	c := det("gun", 0.9)
	u := UniqueObjects([]Detection{a, b, c})
	require.Equal(t, []Detection{c, b}, u)
	require.Empty(t, UniqueObjects(nil))

	flat := Detection{Object: "knife", Confidence: 0.8, Box: nn.MakeRect(5, 5, 5, 9)}
	require.Equal(t, []Detection{a}, UniqueObjects([]Detection{flat, a}))
}

func TestVideoScenario(t *testing.T) {
	log := logs.NewTestingLog(t)
	agg := NewAggregate(log)
	agg.Fold(unit(nn.SceneRobbery))
	agg.Fold(unit(nn.SceneRobbery, det("gun", 0.7)))
	agg.Fold(unit(nn.SceneNormal))

	f := NewFuser(log, NewNarrator(log, &nntest.Summarizer{}))
	r, err := f.FuseVideo(context.Background(), agg)
	require.NoError(t, err)
	require.Equal(t, nn.SceneRobbery, r.FinalLabel)
	require.Equal(t, 67, r.ConfidencePercent)
	require.Equal(t, "gun", r.Evidence)
	require.Equal(t, []SceneKeyword{{"Robbery", 67}}, r.SceneKeywords)
	require.Equal(t, "Primary event identified: Robbery.", r.QuickCaption)
	require.Equal(t, "The system classified the video as a 'robbery' event. Key supporting evidence: gun. Narrative summary of events: "+NoActivityStory, r.FullStory)
	require.Equal(t, 1, len(r.FoundObjects))
}

func TestVideoNoUnits(t *testing.T) {
	log := logs.NewTestingLog(t)
	agg := NewAggregate(log)
	agg.Fold(UnitOutcome{Err: errors.New("decode")})
	f := NewFuser(log, NewNarrator(log, &nntest.Summarizer{}))
	r, err := f.FuseVideo(context.Background(), agg)
	require.ErrorIs(t, err, ErrNoUnitsProcessed)
	require.Nil(t, r)
}

func TestImageScenario(t *testing.T) {
	log := logs.NewTestingLog(t)
	f := NewFuser(log, NewNarrator(log, &nntest.Summarizer{}))
	r := f.FuseImage(&UnitResult{SoftLabel: nn.SceneFighting, Label: nn.SceneFighting}, "two people wrestling")
	require.Equal(t, []SceneKeyword{{"Fighting", 95}}, r.SceneKeywords)
	require.Equal(t, "two people wrestling", r.QuickCaption)
	require.Equal(t, "The image has been classified as 'fighting'. Key objects detected include: none.", r.FullStory)
	require.Equal(t, "signs of a physical altercation", r.Evidence)

	dets := []Detection{det("smoke", 0.5), det("fire", 0.8), det("smoke", 0.6)}
	r = ComposeImage(&UnitResult{SoftLabel: nn.SceneNormal, Label: Override(nn.SceneNormal, dets), Detections: dets}, "a burning car")
	require.Equal(t, "The image has been classified as 'explosion'. Key objects detected include: smoke, fire, smoke.", r.FullStory)
	require.Equal(t, 2, len(r.FoundObjects))
	require.Equal(t, 60, r.FoundObjects[0].Match())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	s := string(b)
	require.True(t, strings.HasPrefix(s, `{"evidence":"fire","quickCaption":"a burning car",`), s)
	require.Contains(t, s, `"sceneKeywords":[{"keyword":"Explosion","match":95}]`)
	require.Contains(t, s, `"foundObjects":[{"object":"smoke","match":60,"box":[10,20,30,40]},{"object":"fire","match":80,"box":[10,20,30,40]}]`)
	require.NotContains(t, s, "FinalLabel")
}
