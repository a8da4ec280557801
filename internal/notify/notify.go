// Package notify defines the outbound notification contract.
//
// The dispatch engine only sees Sender; concrete transports (Telegram, a
// log-only fallback, test fakes) live at the edges.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	logx "memobot/pkg/logx"
)

// Sender delivers one reminder text to a user over a channel. The channel
// name is resolved by the caller from the reminder row, never by the core.
type Sender interface {
	Send(ctx context.Context, userID int64, channel, text string) error
}

// Func adapts a plain function to Sender.
type Func func(ctx context.Context, userID int64, channel, text string) error

func (f Func) Send(ctx context.Context, userID int64, channel, text string) error {
	return f(ctx, userID, channel, text)
}

// RateLimited wraps a Sender with a token-bucket limiter so a burst of due
// reminders cannot trip transport-side flood control. Send blocks until a
// token is available or ctx is done.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimited(next Sender, perSec int) *RateLimited {
	if perSec <= 0 {
		perSec = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
	}
}

func (r *RateLimited) Send(ctx context.Context, userID int64, channel, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.Send(ctx, userID, channel, text)
}

// LogOnly returns a Sender that just logs; used when no transport is
// configured (dev runs).
func LogOnly(log logx.Logger) Sender {
	return Func(func(ctx context.Context, userID int64, channel, text string) error {
		log.Info("reminder delivery (log only)",
			logx.Int64("user_id", userID),
			logx.String("channel", channel),
			logx.String("text", text))
		return nil
	})
}
