// Package nn is the inference interface layer.
// The fusion pipeline only ever sees these interfaces. Concrete implementations
// live elsewhere (see the remote package), and tests substitute fakes.
package nn

import (
	"context"
	"errors"
	"io"
)

// Caption token budgets
const (
	FrameCaptionTokens = 40 // Per sampled video frame
	ImageCaptionTokens = 75 // For a single whole image
)

// Summary length targets, in summarizer units
const (
	DefaultSummaryMinLength = 40
	DefaultSummaryMaxLength = 150
)

var ErrSummarizationFailed = errors.New("Summarization failed")

// Image is one unit of visual input, in encoded form.
// We keep images encoded because every capability consumes them that way,
// and it means that a single image upload never needs to be decoded by us.
type Image struct {
	Data        []byte // JPEG or PNG bytes
	ContentType string // eg "image/jpeg"
}

// SceneClassifier is a soft classifier that picks the single best scene class for an image.
type SceneClassifier interface {
	ClassifyScene(ctx context.Context, img *Image) (SceneClass, error)
}

// ObjectDetector finds evidence objects in an image.
// ObjectDetection.Class is an index into EvidenceClasses.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img *Image) ([]ObjectDetection, error)
}

// Captioner produces a single free text sentence describing an image.
type Captioner interface {
	Caption(ctx context.Context, img *Image, maxTokens int) (string, error)
}

// Summarizer condenses free text.
// Implementations must return an error wrapping ErrSummarizationFailed on failure.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

// Services is the set of capabilities that the pipeline runs against.
// It is built once at startup, shared by all requests, and never mutated after that.
// All four capabilities must be safe for concurrent use.
type Services struct {
	Classifier SceneClassifier
	Detector   ObjectDetector
	Captioner  Captioner
	Summarizer Summarizer
}

// Validate returns an error if any capability is missing
func (s *Services) Validate() error {
	if s.Classifier == nil || s.Detector == nil || s.Captioner == nil || s.Summarizer == nil {
		return errors.New("All four capabilities (classifier, detector, captioner, summarizer) must be configured")
	}
	return nil
}

// Close releases every capability that holds resources.
// A capability that is shared between roles is only closed once.
func (s *Services) Close() error {
	var firstErr error
	closed := map[any]bool{}
	for _, c := range []any{s.Classifier, s.Detector, s.Captioner, s.Summarizer} {
		closer, ok := c.(io.Closer)
		if !ok || closed[c] {
			continue
		}
		closed[c] = true
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
