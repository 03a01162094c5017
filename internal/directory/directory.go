// Package directory caches the month view of participated events and keeps
// it consistent across create, respond and delete without full reloads.
package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/R-koma/calendar-chat/internal/model"
)

// ErrFetchFailed is the user-facing failure for loading the month.
var ErrFetchFailed = errors.New("イベントの取得に失敗しました")

// Fetcher is the slice of the REST client the directory needs.
type Fetcher interface {
	ParticipatedEvents(ctx context.Context, month, year int) ([]model.Event, error)
}

// Directory holds the events of exactly one (month, year). Switching the
// month triggers one fetch; re-selecting the same month does not.
type Directory struct {
	api Fetcher

	mu     sync.RWMutex
	month  int
	year   int
	events []model.Event
	loaded bool
}

func New(api Fetcher) *Directory {
	return &Directory{api: api}
}

// NewCurrentMonth positions the directory on now's month without fetching.
func NewCurrentMonth(api Fetcher, now time.Time) *Directory {
	return &Directory{api: api, month: int(now.Month()), year: now.Year()}
}

// SetMonth moves the view. It fetches only when the (month, year) actually
// changes or nothing has been loaded yet.
func (d *Directory) SetMonth(ctx context.Context, month, year int) error {
	d.mu.Lock()
	same := d.loaded && d.month == month && d.year == year
	d.month, d.year = month, year
	d.mu.Unlock()
	if same {
		return nil
	}
	return d.Refresh(ctx)
}

// Refresh re-fetches the current month from the backend.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.RLock()
	month, year := d.month, d.year
	d.mu.RUnlock()

	events, err := d.api.ParticipatedEvents(ctx, month, year)
	if err != nil {
		return ErrFetchFailed
	}

	d.mu.Lock()
	// A racing SetMonth wins; drop a fetch for a month no longer shown.
	if d.month == month && d.year == year {
		d.events = events
		d.loaded = true
	}
	d.mu.Unlock()
	return nil
}

// Remove drops one event locally, as after a delete the backend already
// confirmed. No refetch needed.
func (d *Directory) Remove(eventID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, ev := range d.events {
		if ev.ID == eventID {
			d.events = append(d.events[:i], d.events[i+1:]...)
			return
		}
	}
}

// Month reports the selected (month, year).
func (d *Directory) Month() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.month, d.year
}

// Events returns a snapshot of the cached month.
func (d *Directory) Events() []model.Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Event, len(d.events))
	copy(out, d.events)
	return out
}
