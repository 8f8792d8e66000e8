package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/scenesolver/scenesolver/pkg/nn"
)

// Detection is an evidence object with a semantic label
type Detection struct {
	Object     string
	Confidence float32
	Box        nn.Rect
}

// Match is the confidence as a rounded percentage
func (d Detection) Match() int {
	return int(math.RoundToEven(float64(d.Confidence) * 100))
}

type detectionJSON struct {
	Object string  `json:"object"`
	Match  int     `json:"match"`
	Box    nn.Rect `json:"box"`
}

func (d Detection) MarshalJSON() ([]byte, error) {
	return json.Marshal(detectionJSON{
		Object: d.Object,
		Match:  d.Match(),
		Box:    d.Box,
	})
}

func (d *Detection) UnmarshalJSON(b []byte) error {
	j := detectionJSON{}
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*d = Detection{
		Object:     j.Object,
		Confidence: float32(j.Match) / 100,
		Box:        j.Box,
	}
	return nil
}

// UnitResult is the classification of one image or one video frame
type UnitResult struct {
	SoftLabel  nn.SceneClass // The scene classifier's own opinion
	Label      nn.SceneClass // SoftLabel after detector overrides. This is what gets voted on.
	Detections []Detection
}

// UnitClassifier fuses the scene classifier and the object detector into one label per unit
type UnitClassifier struct {
	classifier nn.SceneClassifier
	detector   nn.ObjectDetector
}

func NewUnitClassifier(services *nn.Services) *UnitClassifier {
	return &UnitClassifier{
		classifier: services.Classifier,
		detector:   services.Detector,
	}
}

// Classify runs both capabilities on img.
// Any capability failure is returned as-is. It is the caller's decision whether to skip the unit.
func (u *UnitClassifier) Classify(ctx context.Context, img *nn.Image) (*UnitResult, error) {
	soft, err := u.classifier.ClassifyScene(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("Scene classification failed: %w", err)
	}
	if !soft.IsValid() {
		return nil, fmt.Errorf("Scene classifier returned unknown class '%v'", soft)
	}
	raw, err := u.detector.DetectObjects(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("Object detection failed: %w", err)
	}
	detections, err := ToDetections(raw)
	if err != nil {
		return nil, err
	}
	return &UnitResult{
		SoftLabel:  soft,
		Label:      Override(soft, detections),
		Detections: detections,
	}, nil
}

// ToDetections maps raw detector classes onto the evidence vocabulary.
// An out-of-vocabulary class is an error. Degenerate boxes are kept, because their labels
// still count as evidence. They are only left out of the reported objects.
func ToDetections(raw []nn.ObjectDetection) ([]Detection, error) {
	dets := make([]Detection, 0, len(raw))
	for _, r := range raw {
		label, err := nn.EvidenceLabel(r.Class)
		if err != nil {
			return nil, err
		}
		dets = append(dets, Detection{
			Object:     label,
			Confidence: nn.ClampConfidence(r.Confidence),
			Box:        r.Box,
		})
	}
	return dets, nil
}

// Override applies the detector's hard evidence on top of the soft label.
// Rules are evaluated in order, and the first match wins:
// a weapon means robbery, then a fight means fighting, then fire or smoke means explosion.
func Override(soft nn.SceneClass, dets []Detection) nn.SceneClass {
	seen := ObjectsSeen(dets)
	switch {
	case seen.Any("gun", "knife"):
		return nn.SceneRobbery
	case seen.Any("fighting"):
		return nn.SceneFighting
	case seen.Any("fire", "smoke"):
		return nn.SceneExplosion
	}
	return soft
}
