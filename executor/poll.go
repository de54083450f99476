package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/registry"
)

// ErrIndeterminate is returned when a record is still running after the
// poll budget is spent. The run may finish later, may have crashed without
// a terminal write, or may sit behind a stale-but-unexpired record; the
// caller cannot distinguish these and must treat the task as unknown.
var ErrIndeterminate = errors.New("task state indeterminate after polling")

// PollerOptions holds configuration overrides passed to NewPoller().
type PollerOptions struct {
	// Interval between polls.
	Interval time.Duration
	// MaxAttempts before giving up with ErrIndeterminate.
	MaxAttempts int
}

// Poller waits for a dispatched task to leave the running status by
// re-reading its record. Polling the record is the only completion signal a
// remote caller has; the record carries the response payload once the run
// lands.
type Poller struct {
	registry    *registry.Registry
	interval    time.Duration
	maxAttempts int
}

// NewPoller constructs a Poller with optional overrides.
func NewPoller(reg *registry.Registry, optFns ...func(o *PollerOptions)) *Poller {
	opts := PollerOptions{
		Interval:    time.Second,
		MaxAttempts: 30,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Poller{
		registry:    reg,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
	}
}

// Wait polls the triple's record until its status is no longer running and
// returns the final record. A record that stays running for the whole
// budget yields ErrIndeterminate; a record that disappears mid-poll yields
// the registry's not-found error.
func (p *Poller) Wait(ctx context.Context, userID, sessionID, taskID string) (*core.Record, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		rec, err := p.registry.GetRecord(ctx, userID, sessionID, taskID)
		if err != nil {
			return nil, err
		}
		if rec.Status != core.StatusRunning {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, fmt.Errorf("%w: %s:%s:%s", ErrIndeterminate, userID, sessionID, taskID)
}
