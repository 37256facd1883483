package feed

import "time"

// Recorder receives feed health events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	FetchStarted(feed string)
	FetchFinished(feed string, elapsed time.Duration, err error)
	Coalesced(feed string)
	Discarded(feed string)
	Published(feed string, failed bool, lastSuccess time.Time)
}

type nopRecorder struct{}

func (nopRecorder) FetchStarted(string) {}
func (nopRecorder) FetchFinished(string, time.Duration, error) {}
func (nopRecorder) Coalesced(string) {}
func (nopRecorder) Discarded(string) {}
func (nopRecorder) Published(string, bool, time.Time) {}
