// Package ffmpeg is the only place that knows ffmpeg's command-line and filter syntax.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// EnvPath overrides the ffmpeg executable location.
const EnvPath = "XAUDIOSAVE_FFMPEG"

// ErrNotFound is returned when no ffmpeg executable can be located.
var ErrNotFound = errors.New("ffmpeg: executable not found")

var located struct {
	once sync.Once
	path string
	err  error
}

// Locate finds the ffmpeg executable once per process.
// XAUDIOSAVE_FFMPEG wins over $PATH.
func Locate() (string, error) {
	located.once.Do(func() {
		located.path, located.err = lookup(os.Getenv(EnvPath))
	})
	return located.path, located.err
}

func lookup(override string) (string, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return "", fmt.Errorf("%w: %s=%q: %v", ErrNotFound, EnvPath, override, err)
		}
		return path, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return path, nil
}

// Available reports whether ffmpeg can be located.
func Available() bool {
	_, err := Locate()
	return err == nil
}
