// Package feed implements the latest-wins result set channel shared by the
// RemoteStore subscriptions.
package feed

import (
	"sync"

	"github.com/jclararobles/AppListVideos/application/ports"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

// Feed is a ports.Subscription whose buffer holds at most one unread result
// set. A newer set replaces an unread one.
type Feed struct {
	collection string
	updates    chan []ports.Record
	done       chan struct{}
	stop       func()

	mu     sync.Mutex
	closed bool
	err    error
}

// New creates an open feed. stop is called by Close and must end the feed,
// usually by calling End(nil) once the producer has been detached.
func New(collection string, stop func()) *Feed {
	return &Feed{
		collection: collection,
		updates:    make(chan []ports.Record, 1),
		done:       make(chan struct{}),
		stop:       stop,
	}
}

func (f *Feed) Updates() <-chan []ports.Record { return f.updates }

// Done is closed when the feed ends
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Feed) Close() error {
	if f.stop != nil {
		f.stop()
	}
	f.End(nil)
	return nil
}

// Deliver replaces any unread result set with records. It is a no-op once
// the feed has ended.
func (f *Feed) Deliver(records []ports.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case <-f.updates:
	default:
	}
	f.updates <- records
}

// End closes the feed. A non-nil err is reported by Err as a SYNC error.
// Only the first call has any effect.
func (f *Feed) End(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if err != nil {
		if appErrors.IsSync(err) {
			f.err = err
		} else {
			f.err = appErrors.NewSyncError(f.collection, err)
		}
	}
	close(f.done)
	close(f.updates)
}

// Ended reports whether End has run
func (f *Feed) Ended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
