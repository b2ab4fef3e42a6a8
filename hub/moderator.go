// Package hub implements the central router
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hub

import (
	"context"

	"golang.org/x/time/rate"
)

// Moderator paces a producer to a target items-per-minute rate; bulk reset
// streams run through one so replay traffic cannot starve live updates.
type Moderator struct {
	lim *rate.Limiter
}

func NewModerator(itemsPerMinute int) *Moderator {
	if itemsPerMinute <= 0 {
		return &Moderator{}
	}
	return &Moderator{
		lim: rate.NewLimiter(rate.Limit(float64(itemsPerMinute)/60), itemsPerMinute/60+1),
	}
}

// Pause blocks until the next item may go out (or ctx is canceled).
func (m *Moderator) Pause(ctx context.Context) error {
	if m.lim == nil {
		return ctx.Err()
	}
	return m.lim.Wait(ctx)
}
