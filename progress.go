package sidecargo

// ProgressListener receives per-file events during batch walks. The
// walker posts events from worker goroutines, so implementations must be
// safe for concurrent use.
//
// The core stays agnostic to any particular callback shape: adapt this
// to a channel, a progress bar, or a UI bridge in the caller.
type ProgressListener interface {
	// FileStarted is posted before a file is processed.
	FileStarted(path string)

	// FileCompleted is posted after a file is processed. err is nil on
	// success; classification outcomes (stale, corrupt, ...) are not
	// errors.
	FileCompleted(path string, err error)
}

type noopProgress struct{}

func (noopProgress) FileStarted(string)          {}
func (noopProgress) FileCompleted(string, error) {}
