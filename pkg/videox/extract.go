package videox

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrSourceUnreadable = errors.New("Video source is unreadable")

// ProbeDimensions returns the width and height of the first video stream in the file
func ProbeDimensions(srcFilename string) (width, height int, err error) {
	args := []string{
		"-v",
		"error",
		"-select_streams",
		"v:0",
		"-show_entries",
		"stream=width,height",
		"-of",
		"csv=s=x:p=0",
		srcFilename,
	}
	out, err := RunAppCombinedOutput("ffprobe", args)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	// ffprobe sometimes emits warnings before the real output, so take the first line that parses
	outStr := string(out)
	for _, line := range strings.Split(outStr, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "x")
		if len(parts) < 2 {
			continue
		}
		w, errW := strconv.Atoi(parts[0])
		h, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: no video stream in %v (%v)", ErrSourceUnreadable, srcFilename, strings.TrimSpace(outStr))
}

// app_name is an executable, such as "ffmpeg" or "ffprobe"
// args must not include the executable name as the first parameter
// Returns the string output from exec.Cmd's "CombinedOutput" method.
func RunAppCombinedOutput(app_name string, args []string) ([]byte, error) {
	app_path, err := exec.LookPath(app_name)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", app_name, err)
	}
	args_with_app := append([]string{app_name}, args...)
	cmd := &exec.Cmd{
		Path: app_path,
		Args: args_with_app,
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := ""
		if out != nil {
			outStr = string(out)
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", app_name, err, outStr)
	}
	return out, nil
}
