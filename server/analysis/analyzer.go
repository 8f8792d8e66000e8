// Package analysis runs the incident pipeline on one image or video
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/fusion"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/pkg/videox"
	"golang.org/x/sync/semaphore"
)

// Default JPEG quality of sampled video frames that are sent to the capabilities
const DefaultFrameQuality = 85

// FrameSource yields the sampled frames of one video.
// NextFrame returns io.EOF at the end of the video. *videox.Sampler is the production implementation.
type FrameSource interface {
	NextFrame() (*videox.Frame, error)
	DecoderError() error
	Close()
}

// OpenFrameSource opens a video file for sampling every stride'th frame
type OpenFrameSource func(ctx context.Context, filename string, stride int) (FrameSource, error)


type Options struct {
	FrameStride   int             // Sample every Nth frame of a video. Zero means videox.DefaultStride.
	FrameQuality  int             // JPEG quality of sampled frames. Zero means DefaultFrameQuality.
	MaxConcurrent int             // Maximum number of simultaneous analyses. Zero means 1.
	OpenFrames    OpenFrameSource // Nil means decode with ffmpeg (videox.OpenSampler)
}

// Analyzer owns the capabilities, and is shared by all requests.
// Each call to Analyze has its own aggregate state, so calls are independent.
type Analyzer struct {
	log          logs.Log
	services     *nn.Services
	units        *fusion.UnitClassifier
	fuser        *fusion.Fuser
	sem          *semaphore.Weighted
	openFrames   OpenFrameSource
	frameStride  int
	frameQuality int
}

// Outcome is a result together with the per-unit details that produced it
type Outcome struct {
	Media          MediaKind
	Result         *fusion.IncidentResult
	Unit           *fusion.UnitResult // Only populated for images
	UnitsProcessed int
	UnitsFailed    int
	Duration       time.Duration
}

func NewAnalyzer(log logs.Log, services *nn.Services, opt Options) (*Analyzer, error) {
	if err := services.Validate(); err != nil {
		return nil, err
	}
	if opt.FrameStride <= 0 {
		opt.FrameStride = videox.DefaultStride
	}
	if opt.FrameQuality <= 0 || opt.FrameQuality > 100 {
		opt.FrameQuality = DefaultFrameQuality
	}
	if opt.MaxConcurrent <= 0 {
		opt.MaxConcurrent = 1
	}
	a := &Analyzer{
		log:          log,
		services:     services,
		units:        fusion.NewUnitClassifier(services),
		fuser:        fusion.NewFuser(log, fusion.NewNarrator(log, services.Summarizer)),
		sem:          semaphore.NewWeighted(int64(opt.MaxConcurrent)),
		openFrames:   opt.OpenFrames,
		frameStride:  opt.FrameStride,
		frameQuality: opt.FrameQuality,
	}
	if a.openFrames == nil {
		a.openFrames = a.openSampler
	}
	return a, nil
}

func (a *Analyzer) openSampler(ctx context.Context, filename string, stride int) (FrameSource, error) {
	s, err := videox.OpenSampler(ctx, filename, stride)
	if err != nil {
		return nil, err
	}
	a.log.Infof("Analyzing %vx%v video, sampling every %v frames", s.Width(), s.Height(), s.Stride())
	return s, nil
}

// Analyze runs the whole pipeline on media.
// If too many analyses are already running, we wait for a slot (or for ctx to be cancelled).
func (a *Analyzer) Analyze(ctx context.Context, media Media) (*Outcome, error) {
	if media == nil {
		return nil, ErrEmptyMedia
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	start := time.Now()
	var out *Outcome
	var err error
	switch m := media.(type) {
	case *ImageMedia:
		out, err = a.analyzeImage(ctx, m)
	case *VideoMedia:
		out, err = a.analyzeVideo(ctx, m)
	default:
		return nil, ErrUnsupportedMediaType
	}
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	return out, nil
}

func (a *Analyzer) analyzeImage(ctx context.Context, m *ImageMedia) (*Outcome, error) {
	if len(m.Image.Data) == 0 {
		return nil, ErrEmptyMedia
	}
	unit, err := a.units.Classify(ctx, &m.Image)
	if err != nil {
		return nil, err
	}
	caption, err := a.services.Captioner.Caption(ctx, &m.Image, nn.ImageCaptionTokens)
	if err != nil {
		return nil, fmt.Errorf("Captioning failed: %w", err)
	}
	return &Outcome{
		Media:          MediaImage,
		Result:         a.fuser.FuseImage(unit, caption),
		Unit:           unit,
		UnitsProcessed: 1,
	}, nil
}

func (a *Analyzer) analyzeVideo(ctx context.Context, m *VideoMedia) (*Outcome, error) {
	sampler, err := a.openFrames(ctx, m.Filename, a.frameStride)
	if err != nil {
		return nil, err
	}
	defer sampler.Close()

	agg := fusion.NewAggregate(a.log)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := sampler.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			// A broken pipe from the decoder ends the video, but whatever we've seen so far still counts
			a.log.Warnf("Video decoding stopped early: %v", err)
			break
		}
		agg.Fold(a.processFrame(ctx, frame))
	}
	if derr := sampler.DecoderError(); derr != nil {
		a.log.Warnf("Video decoder exited with: %v", derr)
	}

	result, err := a.fuser.FuseVideo(ctx, agg)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Media:          MediaVideo,
		Result:         result,
		UnitsProcessed: agg.UnitsProcessed,
		UnitsFailed:    agg.UnitsFailed,
	}, nil
}

// processFrame classifies and captions one frame.
// A unit either succeeds entirely or fails entirely, so that a failed unit contributes nothing.
func (a *Analyzer) processFrame(ctx context.Context, frame *videox.Frame) fusion.UnitOutcome {
	fail := func(err error) fusion.UnitOutcome {
		return fusion.UnitOutcome{Index: frame.Index, Err: &fusion.UnitError{Index: frame.Index, Err: err}}
	}
	jpg, err := frame.JPEG(a.frameQuality)
	if err != nil {
		return fail(fmt.Errorf("JPEG encoding failed: %w", err))
	}
	img := &nn.Image{Data: jpg, ContentType: "image/jpeg"}
	unit, err := a.units.Classify(ctx, img)
	if err != nil {
		return fail(err)
	}
	caption, err := a.services.Captioner.Caption(ctx, img, nn.FrameCaptionTokens)
	if err != nil {
		return fail(fmt.Errorf("Captioning failed: %w", err))
	}
	a.log.Debugf("Frame %v: %v -> %v, %v objects, '%v'", frame.Index, unit.SoftLabel, unit.Label, len(unit.Detections), caption)
	return fusion.UnitOutcome{
		Index:   frame.Index,
		Result:  unit,
		Caption: caption,
	}
}
