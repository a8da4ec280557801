// Package resolver turns a raw user message into a canonical intent.
//
// It cascades over the configured NLU providers in priority order, each
// raced against its own timeout, and falls back to the deterministic
// heuristic parser when the whole chain comes up empty. Resolution always
// completes: no provider failure ever reaches the caller.
package resolver

import (
	"context"
	"strings"
	"time"

	"memobot/internal/intent"
	"memobot/internal/intent/heuristic"
	"memobot/pkg/logx"
)

// DefaultTimeout bounds a single provider attempt when an Entry does not
// set its own.
const DefaultTimeout = 4 * time.Second

// Adapter is one NLU provider behind a uniform signature. Implementations
// may fail or hang; the resolver treats both the same way.
type Adapter interface {
	Name() string
	Parse(ctx context.Context, message, timezone string) (intent.Result, error)
}

// Entry pairs an adapter with its per-call timeout.
type Entry struct {
	Adapter Adapter
	Timeout time.Duration
}

// Fast-path command aliases. An exact (trimmed, lowered) match returns
// immediately without touching any provider.
var aliases = map[string]intent.Intent{
	"list":    intent.List,
	"lista":   intent.List,
	"listar":  intent.List,
	"/list":   intent.List,
	"done":    intent.Done,
	"feito":   intent.Done,
	"hecho":   intent.Done,
	"help":    intent.Help,
	"ajuda":   intent.Help,
	"ayuda":   intent.Help,
	"/help":   intent.Help,
	"/start":  intent.Help,
	"billing": intent.Billing,
	"plano":   intent.Billing,
	"plan":    intent.Billing,
	"erase":   intent.Erase,
	"apagar":  intent.Erase,
	"borrar":  intent.Erase,
}

type Resolver struct {
	chain []Entry
	log   logx.Logger
	now   func() time.Time
}

func New(log logx.Logger, chain ...Entry) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{chain: chain, log: log, now: time.Now}
}

// Resolve classifies message for a user in the given IANA timezone.
// It never returns an error; every failure path degrades to the next
// provider and finally to the heuristic parser.
func (r *Resolver) Resolve(ctx context.Context, message, timezone string) intent.Result {
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}

	if it, ok := aliases[strings.ToLower(strings.TrimSpace(message))]; ok {
		return intent.Result{Intent: it}
	}

	for _, e := range r.chain {
		res, err := r.attempt(ctx, e, message, timezone)
		if err != nil {
			r.log.Debug("provider attempt failed",
				logx.String("provider", e.Adapter.Name()), logx.Err(err))
			continue
		}
		res = res.Normalize()
		if res.Intent == intent.Unknown {
			// Indistinguishable from a transport failure: fall through.
			r.log.Debug("provider returned unknown",
				logx.String("provider", e.Adapter.Name()))
			continue
		}
		return res
	}

	return heuristic.Parse(message, timezone, r.now())
}

// attempt races one provider call against its timeout. A late response is
// discarded; the timed-out context signals best-effort cancellation to the
// in-flight call.
func (r *Resolver) attempt(ctx context.Context, e Entry, message, timezone string) (intent.Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res intent.Result
		err error
	}
	// Buffered so a straggler can finish and be collected.
	ch := make(chan outcome, 1)
	go func() {
		res, err := e.Adapter.Parse(cctx, message, timezone)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-cctx.Done():
		return intent.Result{}, cctx.Err()
	}
}
