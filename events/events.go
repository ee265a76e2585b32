package events

import "time"

// Event is a hint that a watched file was touched.
type Event struct {
	// This is the file's path.
	File string
	// The time the change was noticed.
	Timestamp time.Time
}

// Outcome is how a watch cycle ended.
type Outcome int

const (
	// FileChanged means a watched file was modified while the child was alive.
	FileChanged Outcome = iota + 1
	// ChildExitedOnItsOwn means the child terminated before any change was seen.
	ChildExitedOnItsOwn
)

func (o Outcome) String() string {
	switch o {
	case FileChanged:
		return "file-changed"
	case ChildExitedOnItsOwn:
		return "child-exited"
	default:
		return "unknown"
	}
}
