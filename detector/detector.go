// Package detector decides whether watched files changed since a baseline.
package detector

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// Stamp is the state of one file when the baseline was taken.
type Stamp struct {
	ModTime time.Time
	Exists  bool
	// Unknown is set when the file couldn't be stat'ed for another reason than
	// not existing. The first successful stat becomes the baseline.
	Unknown bool
}

// Baseline maps every watched path to its stamp. HasChanged fills in unknown
// stamps, so a baseline must not be shared between goroutines.
type Baseline map[string]Stamp

// Detector checks a watch set against a baseline.
type Detector interface {
	// Capture records the current state of every path.
	Capture(paths []string) Baseline
	// HasChanged returns the first changed path, if any.
	HasChanged(paths []string, baseline Baseline) (string, bool)
}

// StatFunc returns file info for a path. It matches os.Stat.
type StatFunc func(path string) (fs.FileInfo, error)

type mtimeDetector struct {
	stat StatFunc
}

// New returns a Detector comparing modification times.
func New() Detector {
	return &mtimeDetector{stat: os.Stat}
}

// NewWithStat is New with a custom stat function.
func NewWithStat(stat StatFunc) Detector {
	return &mtimeDetector{stat: stat}
}

func (d *mtimeDetector) Capture(paths []string) Baseline {
	baseline := make(Baseline, len(paths))
	for _, p := range paths {
		info, err := d.stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			// A later appearance counts as a change.
			baseline[p] = Stamp{}
			continue
		}
		if err != nil {
			baseline[p] = Stamp{Unknown: true}
			continue
		}
		baseline[p] = Stamp{ModTime: info.ModTime(), Exists: true}
	}
	return baseline
}

func (d *mtimeDetector) HasChanged(paths []string, baseline Baseline) (string, bool) {
	for _, p := range paths {
		before, ok := baseline[p]
		if !ok {
			return p, true
		}

		info, err := d.stat(p)
		if before.Unknown {
			switch {
			case errors.Is(err, fs.ErrNotExist):
				baseline[p] = Stamp{}
			case err == nil:
				baseline[p] = Stamp{ModTime: info.ModTime(), Exists: true}
			}
			continue
		}

		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Editors often replace the file on save.
			if before.Exists {
				return p, true
			}
		case err != nil:
			// Transient, look again on the next pass.
		case !before.Exists:
			return p, true
		case info.ModTime().After(before.ModTime):
			return p, true
		}
	}
	return "", false
}
