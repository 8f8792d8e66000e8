// Package nntest provides scripted capabilities for tests
package nntest

import (
	"context"
	"fmt"
	"sync"

	"github.com/scenesolver/scenesolver/pkg/nn"
)

// Frame is the scripted response for one image.
// Err (if not nil) is returned by every capability for that image.
// CaptionErr (if not nil) fails only Caption, so classification and detection still succeed.
type Frame struct {
	Scene      nn.SceneClass
	Detections []nn.ObjectDetection
	Caption    string
	Err        error
	CaptionErr error
}

// Script is a fake classifier, detector and captioner.
// Images are matched to frames by the string content of Image.Data.
// Images that are not in Frames get Default.
type Script struct {
	Frames  map[string]Frame
	Default Frame

	lock          sync.Mutex
	captionTokens []int
}

func (s *Script) frame(img *nn.Image) Frame {
	if f, ok := s.Frames[string(img.Data)]; ok {
		return f
	}
	return s.Default
}

func (s *Script) ClassifyScene(ctx context.Context, img *nn.Image) (nn.SceneClass, error) {
	f := s.frame(img)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Scene, nil
}

func (s *Script) DetectObjects(ctx context.Context, img *nn.Image) ([]nn.ObjectDetection, error) {
	f := s.frame(img)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Detections, nil
}

func (s *Script) Caption(ctx context.Context, img *nn.Image, maxTokens int) (string, error) {
	s.lock.Lock()
	s.captionTokens = append(s.captionTokens, maxTokens)
	s.lock.Unlock()
	f := s.frame(img)
	if f.Err != nil {
		return "", f.Err
	}
	if f.CaptionErr != nil {
		return "", f.CaptionErr
	}
	return f.Caption, nil
}

// CaptionTokens returns the maxTokens value of every Caption call so far
func (s *Script) CaptionTokens() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int(nil), s.captionTokens...)
}

// Summarizer returns Summary, or fails if Fail is set.
// Every input text is recorded.
type Summarizer struct {
	Summary string
	Fail    bool

	lock   sync.Mutex
	inputs []string
}

func (s *Summarizer) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	s.lock.Lock()
	s.inputs = append(s.inputs, text)
	s.lock.Unlock()
	if s.Fail {
		return "", fmt.Errorf("%w: model unavailable", nn.ErrSummarizationFailed)
	}
	return s.Summary, nil
}

func (s *Summarizer) Inputs() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.inputs...)
}

// Services wires a Script and a Summarizer into an nn.Services
func Services(script *Script, summarizer *Summarizer) *nn.Services {
	return &nn.Services{
		Classifier: script,
		Detector:   script,
		Captioner:  script,
		Summarizer: summarizer,
	}
}

// Detect is shorthand for building a detection
func Detect(class int, confidence float32, x1, y1, x2, y2 int) nn.ObjectDetection {
	return nn.ObjectDetection{
		Class:      class,
		Confidence: confidence,
		Box:        nn.MakeRect(x1, y1, x2, y2),
	}
}
