package fusion

import (
	"fmt"
	"strings"

	"github.com/scenesolver/scenesolver/pkg/nn"
)

// SceneKeyword is a ranked scene class
type SceneKeyword struct {
	Keyword string `json:"keyword"`
	Match   int    `json:"match"`
}

// IncidentResult is the final assessment of one image or video.
// It is immutable once composed.
type IncidentResult struct {
	FinalLabel        nn.SceneClass  `json:"-"`
	ConfidencePercent int            `json:"-"`
	Evidence          string         `json:"evidence,omitempty"`
	QuickCaption      string         `json:"quickCaption"`
	FullStory         string         `json:"fullStory"`
	SceneKeywords     []SceneKeyword `json:"sceneKeywords"`
	FoundObjects      []Detection    `json:"foundObjects"`
}

// UniqueObjects keeps one detection per object label.
// The last detection of each label wins, but it takes the position where that label was first seen.
// Detections with a degenerate box are not reported.
func UniqueObjects(dets []Detection) []Detection {
	index := map[string]int{}
	unique := []Detection{}
	for _, d := range dets {
		if !d.Box.Valid() {
			continue
		}
		if i, ok := index[d.Object]; ok {
			unique[i] = d
		} else {
			index[d.Object] = len(unique)
			unique = append(unique, d)
		}
	}
	return unique
}

func newResult(label nn.SceneClass, confidence int, evidence string, dets []Detection) *IncidentResult {
	return &IncidentResult{
		FinalLabel:        label,
		ConfidencePercent: confidence,
		Evidence:          evidence,
		SceneKeywords: []SceneKeyword{
			{Keyword: label.Title(), Match: confidence},
		},
		FoundObjects: UniqueObjects(dets),
	}
}

// ComposeVideo builds the result of a video from its vote, evidence and story
func ComposeVideo(vote Vote, evidence, story string, dets []Detection) *IncidentResult {
	r := newResult(vote.Label, vote.ConfidencePercent, evidence, dets)
	r.QuickCaption = fmt.Sprintf("Primary event identified: %v.", vote.Label.Title())
	r.FullStory = fmt.Sprintf("The system classified the video as a '%v' event. Key supporting evidence: %v. Narrative summary of events: %v",
		vote.Label, evidence, story)
	return r
}

// ComposeImage builds the result of a single image.
// Images are not voted on, so the confidence is always ImageConfidencePercent.
func ComposeImage(unit *UnitResult, caption string) *IncidentResult {
	evidence := SelectEvidence(unit.Label, ObjectsSeen(unit.Detections))
	r := newResult(unit.Label, ImageConfidencePercent, evidence, unit.Detections)
	r.QuickCaption = caption
	r.FullStory = fmt.Sprintf("The image has been classified as '%v'. Key objects detected include: %v.", unit.Label, objectList(unit.Detections))
	return r
}

// objectList joins every detected label, duplicates included
func objectList(dets []Detection) string {
	if len(dets) == 0 {
		return "none"
	}
	labels := make([]string, len(dets))
	for i, d := range dets {
		labels[i] = d.Object
	}
	return strings.Join(labels, ", ")
}
