// Package job holds domain-level scheduling primitives: the admission gate,
// queue wakeup notifier, and the in-process cancellation registry.
package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until an external wakeup arrives on the underlying channel,
// typically a Postgres LISTEN/NOTIFY subscription.
type Waiter interface {
	WaitForNotification(ctx context.Context) error
}

// WaiterFunc adapts a plain function to the Waiter interface.
type WaiterFunc func(ctx context.Context) error

func (f WaiterFunc) WaitForNotification(ctx context.Context) error { return f(ctx) }

// Notifier fans a single wakeup source out to many subscribers.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the behaviour of the default notifier implementation.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds each wait so subscribers also wake periodically even
	// if a notification is lost; defaults to one minute.
	WaitWindow time.Duration
	// Backoff delays the next wait after a failed one; defaults to 250ms.
	Backoff time.Duration
}

// DefaultNotifier runs a single listen loop while at least one subscriber
// exists and broadcasts each wakeup to all of them.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu       sync.Mutex
	subs     map[chan struct{}]struct{}
	listener context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[chan struct{}]struct{}),
	}, nil
}

func (n *DefaultNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.listener = cancel
		go n.listenLoop(ctx)
	}

	ch := make(chan struct{}, 1)
	n.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; !ok {
			return
		}
		delete(n.subs, ch)
		drainAndClose(ch)
		if len(n.subs) == 0 {
			n.stopListenerLocked()
		}
	}

	return unsub, ch
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopListenerLocked()
	for ch := range n.subs {
		drainAndClose(ch)
		delete(n.subs, ch)
	}
}

func (n *DefaultNotifier) stopListenerLocked() {
	if n.listener != nil {
		n.listener()
		n.listener = nil
	}
}

func (n *DefaultNotifier) listenLoop(ctx context.Context) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx)
		cancel()

		n.broadcast()

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
