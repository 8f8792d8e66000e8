package fusion

import (
	"errors"
	"fmt"
)

// ErrNoUnitsProcessed means that every unit of a video failed (or the video had no frames)
var ErrNoUnitsProcessed = errors.New("Could not process any frames from the video")

// UnitError is the failure of a single unit (one frame of a video).
// It is recovered locally by skipping the unit.
type UnitError struct {
	Index int // Frame index
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("Unit %v failed: %v", e.Index, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
