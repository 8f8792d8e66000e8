// Package preview renders and stores annotated copies of analyzed images
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"path"

	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"github.com/scenesolver/scenesolver/pkg/fusion"
	"github.com/scenesolver/scenesolver/server/storage"
	_ "golang.org/x/image/webp"
)

// Previews are downscaled so that their longest side is at most this many pixels
const DefaultMaxSize = 1280

// Box colors, by object label
var objectColors = map[string]color.RGBA{
	"fire":        {255, 80, 0, 255},
	"smoke":       {160, 160, 160, 255},
	"fighting":    {255, 0, 200, 255},
	"gun":         {255, 0, 0, 255},
	"knife":       {255, 220, 0, 255},
	"shoplifting": {0, 160, 255, 255},
}

type Renderer struct {
	log     logs.Log
	store   storage.Storage
	MaxSize int
}

func NewRenderer(log logs.Log, store storage.Storage) *Renderer {
	return &Renderer{
		log:     log,
		store:   store,
		MaxSize: DefaultMaxSize,
	}
}

// Render draws the detection boxes and their labels onto a copy of img.
// The result is scaled down if img is larger than maxSize.
func Render(img image.Image, dets []fusion.Detection, maxSize int) image.Image {
	return annotate(img, dets, maxSize).Image()
}

func annotate(img image.Image, dets []fusion.Detection, maxSize int) *gg.Context {
	b := img.Bounds()
	scale := 1.0
	if maxSize > 0 && max(b.Dx(), b.Dy()) > maxSize {
		scale = float64(maxSize) / float64(max(b.Dx(), b.Dy()))
	}
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	dc := gg.NewContext(w, h)
	dc.Push()
	dc.Scale(scale, scale)
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	dc.Pop()

	lineWidth := max(2, float64(min(w, h))/200)
	for _, d := range dets {
		if !d.Box.Valid() {
			continue
		}
		c, ok := objectColors[d.Object]
		if !ok {
			c = color.RGBA{0, 255, 0, 255}
		}
		x1 := float64(d.Box.X1) * scale
		y1 := float64(d.Box.Y1) * scale
		bw := float64(d.Box.Width()) * scale
		bh := float64(d.Box.Height()) * scale
		dc.SetColor(c)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(x1, y1, bw, bh)
		dc.Stroke()

		label := fmt.Sprintf("%v %v%%", d.Object, d.Match())
		tw, th := dc.MeasureString(label)
		ty := y1 - th - 4
		if ty < 0 {
			ty = y1
		}
		dc.DrawRectangle(x1, ty, tw+6, th+4)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(label, x1+3, ty+2, 0, 1)
	}
	return dc
}

// Save decodes an uploaded image, annotates it, and writes it to storage as a PNG.
// Returns the storage key of the preview.
func (r *Renderer) Save(ctx context.Context, encoded []byte, dets []fusion.Detection) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("Failed to decode image for preview: %w", err)
	}
	buf := bytes.Buffer{}
	if err := annotate(img, dets, r.MaxSize).EncodePNG(&buf); err != nil {
		return "", err
	}
	key := path.Join("previews", uuid.NewString()+".png")
	if err := storage.WriteFile(ctx, r.store, key, "image/png", buf.Bytes()); err != nil {
		return "", fmt.Errorf("Failed to store preview: %w", err)
	}
	r.log.Debugf("Saved preview %v of %v image (%v bytes)", key, format, buf.Len())
	return key, nil
}

// Open returns the stored preview. The caller must close File.Reader.
func (r *Renderer) Open(ctx context.Context, key string) (*storage.File, error) {
	return r.store.ReadFile(ctx, key)
}

// Delete removes previews, logging (but otherwise ignoring) failures
func (r *Renderer) Delete(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := r.store.DeleteFile(ctx, k); err != nil {
			r.log.Warnf("Failed to delete preview %v: %v", k, err)
		}
	}
}
