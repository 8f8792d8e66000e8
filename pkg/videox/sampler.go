package videox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// DefaultStride is the default number of source frames per sampled frame
const DefaultStride = 15

// Frame is one decoded frame of a video
type Frame struct {
	Index int         // Frame number in the source video (0-based)
	Image *cimg.Image // 24-bit RGB
}

// JPEG compresses the frame
func (f *Frame) JPEG(quality int) ([]byte, error) {
	return cimg.Compress(f.Image, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}

// Sampler decodes every Nth frame of a video file (frames 0, N, 2N, ...).
// Frames are decoded lazily by an ffmpeg child process, so a long video never needs
// to be held in memory. You must call Close when finished, even after NextFrame
// has returned io.EOF or an error.
type Sampler struct {
	ctx      context.Context
	filename string
	stride   int
	width    int
	height   int

	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     *tailBuffer
	nextIndex  int
	eof        bool
	decoderErr error
}

// OpenSampler probes the video and starts decoding.
// If stride is zero or negative, DefaultStride is used.
// Returns an error wrapping ErrSourceUnreadable if the video cannot be opened.
func OpenSampler(ctx context.Context, filename string, stride int) (*Sampler, error) {
	if stride <= 0 {
		stride = DefaultStride
	}
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	width, height, err := ProbeDimensions(filename)
	if err != nil {
		return nil, err
	}
	s := &Sampler{
		ctx:      ctx,
		filename: filename,
		stride:   stride,
		width:    width,
		height:   height,
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sampler) Width() int {
	return s.width
}

func (s *Sampler) Height() int {
	return s.height
}

func (s *Sampler) Stride() int {
	return s.stride
}

func (s *Sampler) start() error {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("%w: unable to find 'ffmpeg' in your path (%w)", ErrSourceUnreadable, err)
	}
	args := []string{
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", s.filename,
		"-vf", "select=not(mod(n\\," + strconv.Itoa(s.stride) + "))",
		"-vsync", "0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
	cmd := exec.CommandContext(s.ctx, ffmpeg, args...)
	s.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.nextIndex = 0
	s.eof = false
	s.decoderErr = nil
	return nil
}

// NextFrame returns the next sampled frame, or io.EOF when the video is exhausted.
// A truncated final frame is treated as the end of the stream.
func (s *Sampler) NextFrame() (*Frame, error) {
	if s.eof || s.cmd == nil {
		return nil, io.EOF
	}
	pixels := make([]byte, s.width*s.height*3)
	_, err := io.ReadFull(s.stdout, pixels)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.eof = true
		s.wait()
		return nil, io.EOF
	} else if err != nil {
		return nil, err
	}
	frame := &Frame{
		Index: s.nextIndex,
		Image: cimg.WrapImage(s.width, s.height, cimg.PixelFormatRGB, pixels),
	}
	s.nextIndex += s.stride
	return frame, nil
}

// Reset restarts the sequence from frame 0
func (s *Sampler) Reset() error {
	s.Close()
	return s.start()
}

// DecoderError returns the decoder's exit error, if it exited abnormally.
// This is only populated once NextFrame has returned io.EOF.
// Decoding stops at the first unrecoverable error, and we treat that as the end of the video,
// so this is purely informational.
func (s *Sampler) DecoderError() error {
	return s.decoderErr
}

// Close stops the decoder process. It is safe to call Close more than once.
func (s *Sampler) Close() {
	if s.cmd == nil {
		return
	}
	if !s.eof && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	s.wait()
	s.cmd = nil
}

func (s *Sampler) wait() {
	if s.cmd == nil || s.cmd.ProcessState != nil {
		return
	}
	if err := s.cmd.Wait(); err != nil && s.eof {
		msg := strings.TrimSpace(s.stderr.String())
		if msg != "" {
			s.decoderErr = fmt.Errorf("%w (%v)", err, msg)
		} else {
			s.decoderErr = err
		}
	}
}

// tailBuffer keeps the last 'max' bytes written to it
type tailBuffer struct {
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if t.buf.Len() > t.max {
		b := t.buf.Bytes()
		keep := append([]byte(nil), b[len(b)-t.max:]...)
		t.buf.Reset()
		t.buf.Write(keep)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
