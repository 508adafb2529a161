package ges

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/go-event-sourcing/recorder"
)

const (
	// DefaultSectionSize is the page size NotificationLogReader.Next uses
	// when pulling from the recorder.
	DefaultSectionSize = 200
	// DefaultGapPollInterval is how often the reader re-polls a suspected
	// gap before giving up on it.
	DefaultGapPollInterval = 50 * time.Millisecond
	// DefaultGapTolerance is how long a gap may persist before the reader
	// treats it as a permanently aborted transaction and advances past it.
	DefaultGapTolerance = 3 * time.Second
)

// NotificationLogReader presents the recorder's notification sequence as a
// pull-based, idempotent, restartable stream. It is only safe for a single
// goroutine to call Next on a given reader at a time.
//
// Gap handling: a consumer that has accepted id N has an implicit
// guarantee that no id < N will later appear. When the expected next id is
// missing, the reader polls briefly — gaps from concurrent in-flight
// writers typically close within that window — and after GapTolerance
// elapses with the gap still open, treats it as an aborted transaction and
// advances past it.
type NotificationLogReader struct {
	recorder        recorder.Recorder
	sectionSize     int
	gapPollInterval time.Duration
	gapTolerance    time.Duration

	cursor int64
	buf    []recorder.Notification
}

// ReaderOption configures a NotificationLogReader.
type ReaderOption func(*NotificationLogReader)

// WithSectionSize overrides DefaultSectionSize.
func WithSectionSize(n int) ReaderOption {
	return func(r *NotificationLogReader) { r.sectionSize = n }
}

// WithGapPollInterval overrides DefaultGapPollInterval.
func WithGapPollInterval(d time.Duration) ReaderOption {
	return func(r *NotificationLogReader) { r.gapPollInterval = d }
}

// WithGapTolerance overrides DefaultGapTolerance.
func WithGapTolerance(d time.Duration) ReaderOption {
	return func(r *NotificationLogReader) { r.gapTolerance = d }
}

// NewNotificationLogReader creates a reader that starts at id start.
func NewNotificationLogReader(rec recorder.Recorder, start int64, opts ...ReaderOption) *NotificationLogReader {
	r := &NotificationLogReader{
		recorder:        rec,
		sectionSize:     DefaultSectionSize,
		gapPollInterval: DefaultGapPollInterval,
		gapTolerance:    DefaultGapTolerance,
		cursor:          start,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next blocks until it can return the next notification in id order,
// applying the gap-tolerance policy described on NotificationLogReader.
func (r *NotificationLogReader) Next(ctx context.Context) (recorder.Notification, error) {
	for len(r.buf) == 0 {
		if err := ctx.Err(); err != nil {
			return recorder.Notification{}, err
		}

		batch, err := r.recorder.SelectNotifications(ctx, r.cursor, r.sectionSize, nil)
		if err != nil {
			return recorder.Notification{}, err
		}

		if len(batch) == 0 {
			if err := r.sleep(ctx, r.gapPollInterval); err != nil {
				return recorder.Notification{}, err
			}
			continue
		}

		if batch[0].ID != r.cursor {
			closed, err := r.awaitGapClose(ctx, r.cursor)
			if err != nil {
				return recorder.Notification{}, err
			}
			if closed {
				continue // re-query: the missing id should now be present
			}
			// tolerance elapsed; the gap is permanent, advance past it
		}

		// End the page at the first hole inside it, so that hole goes
		// through the same gap check when the next page is queried.
		for i := 1; i < len(batch); i++ {
			if batch[i].ID != batch[i-1].ID+1 {
				batch = batch[:i]
				break
			}
		}
		r.buf = batch
	}

	n := r.buf[0]
	r.buf = r.buf[1:]
	r.cursor = n.ID + 1
	return n, nil
}

// awaitGapClose polls for want to appear, up to gapTolerance. It returns
// true if want showed up (caller should re-query the full page) and false
// if the tolerance window elapsed with the gap still open.
func (r *NotificationLogReader) awaitGapClose(ctx context.Context, want int64) (bool, error) {
	deadline := time.Now().Add(r.gapTolerance)
	for time.Now().Before(deadline) {
		if err := r.sleep(ctx, r.gapPollInterval); err != nil {
			return false, err
		}
		got, err := r.recorder.SelectNotifications(ctx, want, 1, nil)
		if err != nil {
			return false, err
		}
		if len(got) > 0 && got[0].ID == want {
			return true, nil
		}
	}
	return false, nil
}

func (r *NotificationLogReader) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Section is a half-open id range addressed as a named string ("1,10"
// meaning ids 1..10), together with its contents and cursors to
// neighboring sections — enabling HTTP/REST-style pagination by
// downstream services.
type Section struct {
	Items      []recorder.Notification
	SectionID  string
	NextID     string
	PreviousID string
}

// ReadSection returns the section identified by sectionID ("start,stop",
// both inclusive, 1-based).
func ReadSection(ctx context.Context, rec recorder.Recorder, sectionID string) (Section, error) {
	start, stop, err := parseSectionID(sectionID)
	if err != nil {
		return Section{}, err
	}
	limit := int(stop-start) + 1
	items, err := rec.SelectNotifications(ctx, start, limit, &stop)
	if err != nil {
		return Section{}, err
	}

	size := stop - start + 1
	sec := Section{
		Items:     items,
		SectionID: sectionID,
		NextID:    fmt.Sprintf("%d,%d", stop+1, stop+size),
	}
	if start > 1 {
		prevStart := start - size
		if prevStart < 1 {
			prevStart = 1
		}
		sec.PreviousID = fmt.Sprintf("%d,%d", prevStart, start-1)
	}
	return sec, nil
}

func parseSectionID(id string) (start, stop int64, err error) {
	parts := strings.SplitN(id, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ges: malformed section id %q", id)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ges: malformed section id %q: %w", id, err)
	}
	stop, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ges: malformed section id %q: %w", id, err)
	}
	if stop < start {
		return 0, 0, fmt.Errorf("ges: malformed section id %q: stop before start", id)
	}
	return start, stop, nil
}
