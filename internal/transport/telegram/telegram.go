// Package telegram adapts the bot core to Telegram via long polling.
//
// Inbound text messages are handed to the Handler; outbound sends implement
// notify.Sender so the dispatch engine can deliver through the same bot.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "memobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Handler consumes one inbound message and returns the reply text.
// An empty reply means nothing is sent back.
type Handler interface {
	HandleMessage(ctx context.Context, userID int64, channel, text string) (string, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	handler Handler

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, handler Handler, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, handler: handler}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || a.handler == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reply, err := a.handler.HandleMessage(ctx, m.Sender.ID, "telegram", m.Text)
		if err != nil {
			a.log.Warn("message handling failed",
				logx.Int64("user_id", m.Sender.ID), logx.Err(err))
			return nil
		}
		if reply == "" {
			return nil
		}
		for _, chunk := range splitText(reply, textLimit) {
			if err := c.Send(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true

	c, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		<-c.Done()
		a.bot.Stop()
	}()
	go func() {
		defer close(a.done)
		a.log.Info("polling started")
		// Start blocks until Stop() is called.
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.runMu.Unlock()

	cancel()
	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		a.log.Warn("telegram stop timed out")
		return nil
	}
}

// Send delivers a reminder notification to the user's private chat.
// It satisfies notify.Sender; the channel argument is always "telegram" here.
func (a *Adapter) Send(ctx context.Context, userID int64, channel, text string) error {
	for _, chunk := range splitText(text, textLimit) {
		if _, err := a.bot.Send(&tele.User{ID: userID}, chunk); err != nil {
			return err
		}
	}
	return nil
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries so formatted lists stay readable.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						end = i + 1
					}
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
