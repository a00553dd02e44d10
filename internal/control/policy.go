package control

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds every external call made while handling one turn.
type Policy struct {
	// FetchTimeout bounds each chat-platform fetch (ancestor, history, channel).
	FetchTimeout time.Duration
	// DocumentTimeout bounds the ruleset document fetch.
	DocumentTimeout   time.Duration
	CompletionTimeout time.Duration
	// TurnWallTime bounds the whole turn, sends included.
	TurnWallTime time.Duration
}

// DefaultPolicy returns the default per-boundary timeouts.
func DefaultPolicy() Policy {
	return Policy{
		FetchTimeout:      10 * time.Second,
		DocumentTimeout:   20 * time.Second,
		CompletionTimeout: 120 * time.Second,
		TurnWallTime:      180 * time.Second,
	}
}

// LimitType identifies which limit is reached.
type LimitType string

const (
	LimitWallTime LimitType = "turn_wall_time_seconds"
)

// LimitError indicates a run limit was reached.
type LimitError struct {
	Type      LimitType
	Value     int64
	Threshold int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached type=%s value=%d threshold=%d", e.Type, e.Value, e.Threshold)
}

// CheckWallTime validates elapsed time against policy. A zero TurnWallTime
// disables the check.
func CheckWallTime(p Policy, startedAt time.Time, now time.Time) error {
	limit := p.TurnWallTime
	if limit <= 0 {
		return nil
	}
	elapsed := now.Sub(startedAt)
	if elapsed > limit {
		return &LimitError{
			Type:      LimitWallTime,
			Value:     int64(elapsed.Seconds()),
			Threshold: int64(limit.Seconds()),
		}
	}
	return nil
}

// WithTimeout is context.WithTimeout where d <= 0 means no deadline.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
