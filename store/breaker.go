package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSink guards a Sink with a circuit breaker, so a store that keeps
// failing is skipped quickly instead of timing out on every record.
type BreakerSink struct {
	next    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// WithBreaker wraps next. The breaker opens after more than five consecutive
// failures and probes again after 30 seconds.
func WithBreaker(next Sink, name string) *BreakerSink {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &BreakerSink{next: next, breaker: cb}
}

// State reports the breaker state.
func (b *BreakerSink) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerSink) DeleteUser(ctx context.Context, userID string) error {
	return b.do(func() error { return b.next.DeleteUser(ctx, userID) })
}

func (b *BreakerSink) InsertRun(ctx context.Context, userID string, rec RunRecord) error {
	return b.do(func() error { return b.next.InsertRun(ctx, userID, rec) })
}

func (b *BreakerSink) InsertSnapshot(ctx context.Context, userID string, rec SnapshotRecord) error {
	return b.do(func() error { return b.next.InsertSnapshot(ctx, userID, rec) })
}

func (b *BreakerSink) do(fn func() error) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
