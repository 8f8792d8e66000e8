package nn

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is an axis aligned box in pixel coordinates.
// X2 and Y2 are exclusive.
type Rect struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

func MakeRect(x1, y1, x2, y2 int) Rect {
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Valid is true if the box has positive width and height
func (r Rect) Valid() bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

func (r Rect) Width() int {
	return r.X2 - r.X1
}

func (r Rect) Height() int {
	return r.Y2 - r.Y1
}

// Rect is serialized as [x1,y1,x2,y2]
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X1, r.Y1, r.X2, r.Y2})
}

// Fractional coordinates are truncated, the same way the detector's own xyxy boxes are
func (r *Rect) UnmarshalJSON(b []byte) error {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("Expected 4 box coordinates, but got %v", len(v))
	}
	*r = Rect{X1: int(v[0]), Y1: int(v[1]), X2: int(v[2]), Y2: int(v[3])}
	return nil
}

// ClampConfidence forces a confidence into [0,1]
func ClampConfidence(c float32) float32 {
	if math32.IsNaN(c) {
		return 0
	}
	return math32.Max(0, math32.Min(1, c))
}
