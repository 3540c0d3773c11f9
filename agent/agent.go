package agent

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
)

type agentState int

const (
	stateInitializing agentState = iota
	stateFresh
	stateRefreshing
)

func (s agentState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateRefreshing:
		return "refreshing"
	default:
		return "initializing"
	}
}

type fetchMsg struct {
	reply chan fetchResult
}

type fetchResult struct {
	token *token.Token
	err   error
}

// refreshMsg is tagged with the generation it was scheduled under so a
// timer fire from a superceded arm is silently dropped instead of
// re-triggering a refresh out of turn.
type refreshMsg struct {
	generation uint64
}

type closeMsg struct {
	done chan struct{}
}

// Agent owns the lifecycle of exactly one named credential: Initializing,
// Fresh, Refreshing (spec.md §4.4). All state transitions are serialized on
// its mailbox goroutine, grounded on the lock-serialized APIClient login/renew
// cycle in atc/creds/vault/api_client.go and the pool supervisor loop in
// atc/creds/pool.go.
type Agent struct {
	name string
	opts Options
	log  lager.Logger
	clk  clock.Clock

	slot func() *tokenSlot

	mailbox chan any
	stopped chan struct{}
}

// tokenSlot is the agent's single registry entry.
type tokenSlot struct {
	store func(*token.Token)
	load  func() (*token.Token, bool)
}

func newAgent(opts Options, registry *Registry, log lager.Logger, clk clock.Clock) *Agent {
	slotRef := registry.slotFor(opts.Name)
	return &Agent{
		name: opts.Name,
		opts: opts,
		log:  log.Session("credential-agent", lager.Data{"name": opts.Name}),
		clk:  clk,
		slot: func() *tokenSlot {
			return &tokenSlot{
				store: func(t *token.Token) { slotRef.Store(t) },
				load: func() (*token.Token, bool) {
					t, ok := slotRef.Load().(*token.Token)
					return t, ok
				},
			}
		},
		mailbox: make(chan any, 8),
		stopped: make(chan struct{}),
	}
}

// start launches the actor goroutine and blocks until the initial
// Initializing step (sync prefetch) completes, or returns immediately after
// scheduling it (async prefetch).
func (a *Agent) start(ctx context.Context) error {
	switch a.opts.Prefetch {
	case "", PrefetchSync, PrefetchAsync:
	default:
		return &errtax.ConfigurationError{Type: "invalid_option", Key: "prefetch", Value: string(a.opts.Prefetch)}
	}

	ready := make(chan error, 1)
	go a.run(ctx, ready)
	return <-ready
}

func (a *Agent) run(ctx context.Context, ready chan<- error) {
	state := stateInitializing
	retryCount := 0
	var generation uint64
	var timer clock.Timer
	slot := a.slot()

	armTimer := func(d time.Duration) {
		if timer != nil {
			timer.Stop()
		}
		generation++
		gen := generation
		timer = a.clk.NewTimer(d)
		go func(c <-chan time.Time) {
			select {
			case <-c:
				select {
				case a.mailbox <- refreshMsg{generation: gen}:
				case <-ctx.Done():
				}
			case <-ctx.Done():
			}
		}(timer.C())
	}

	doRefresh := func() {
		tok, err := a.opts.Source.Fetch(ctx)
		if err != nil {
			if retryCount < a.opts.MaxRetries {
				delay := a.retryDelay(retryCount)
				retryCount++
				a.log.Info("refresh-failed-retrying", lager.Data{"retry_count": retryCount, "delay": delay.String()})
				armTimer(delay)
			} else {
				retryCount = 0
				a.log.Error("refresh-failed-exhausted-retries", err)
				armTimer(30 * time.Second)
			}
			state = stateRefreshing
			return
		}

		slot.store(tok)
		retryCount = 0
		state = stateFresh
		refreshBefore := a.opts.RefreshBefore
		delay := time.Duration(tok.ExpiresAt-a.clk.Now().Unix())*time.Second - refreshBefore
		if delay < 0 {
			delay = 0
		}
		armTimer(delay)
	}

	switch a.opts.Prefetch {
	case PrefetchAsync:
		state = stateRefreshing
		armTimer(0)
		ready <- nil
	default: // sync
		tok, err := a.opts.Source.Fetch(ctx)
		if err != nil {
			a.log.Error("initial-fetch-failed", err)
			state = stateRefreshing
			armTimer(0)
		} else {
			slot.store(tok)
			state = stateFresh
			refreshBefore := a.opts.RefreshBefore
			delay := time.Duration(tok.ExpiresAt-a.clk.Now().Unix())*time.Second - refreshBefore
			if delay < 0 {
				delay = 0
			}
			armTimer(delay)
		}
		ready <- nil
	}

	for {
		select {
		case msg := <-a.mailbox:
			switch m := msg.(type) {
			case fetchMsg:
				if state == stateFresh {
					if tok, ok := slot.load(); ok {
						m.reply <- fetchResult{token: tok}
						continue
					}
				}
				tok, err := a.opts.Source.Fetch(ctx)
				if err != nil {
					m.reply <- fetchResult{err: err}
					continue
				}
				slot.store(tok)
				m.reply <- fetchResult{token: tok}
				retryCount = 0
				state = stateFresh
				refreshBefore := a.opts.RefreshBefore
				delay := time.Duration(tok.ExpiresAt-a.clk.Now().Unix())*time.Second - refreshBefore
				if delay < 0 {
					delay = 0
				}
				armTimer(delay)
			case refreshMsg:
				if m.generation != generation {
					continue
				}
				doRefresh()
			case closeMsg:
				if timer != nil {
					timer.Stop()
				}
				close(m.done)
				return
			}
		}
	}
}

// retryDelay computes the scheduled-refresh backoff: either the configured
// override, or min(30, 2^retryCount) seconds, per spec.md §4.4.
func (a *Agent) retryDelay(retryCount int) time.Duration {
	if a.opts.RetryDelay > 0 {
		return a.opts.RetryDelay
	}
	n := 1 << retryCount
	seconds := 30
	if n < seconds {
		seconds = n
	}
	return time.Duration(seconds) * time.Second
}

// fetch requests the agent to return its current token, fetching a fresh
// one synchronously if not already Fresh.
func (a *Agent) fetch(ctx context.Context) (*token.Token, error) {
	reply := make(chan fetchResult, 1)
	select {
	case a.mailbox <- fetchMsg{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.token, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops the agent's actor goroutine.
func (a *Agent) close() {
	done := make(chan struct{})
	a.mailbox <- closeMsg{done: done}
	<-done
}
