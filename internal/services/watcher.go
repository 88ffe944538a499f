package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"
)

const (
	watcherMaxRetries = 5
	watcherBackoff    = 5 * time.Second
)

// accountStream yields the lamports of one account on every change.
type accountStream interface {
	Recv(ctx context.Context) (uint64, error)
	Unsubscribe()
}

type subscribeFunc func(addr solana.PublicKey) (accountStream, error)

type wsAccountStream struct {
	sub *ws.AccountSubscription
}

func (s wsAccountStream) Recv(ctx context.Context) (uint64, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, fmt.Errorf("empty account notification")
	}
	return res.Value.Lamports, nil
}

func (s wsAccountStream) Unsubscribe() { s.sub.Unsubscribe() }

// BalanceWatcher keeps the balance cache current from websocket account
// notifications. A dropped subscription is re-established with an
// increasing delay, giving up after watcherMaxRetries failed attempts.
type BalanceWatcher struct {
	cache     *BalanceCache
	subscribe subscribeFunc
	backoff   time.Duration
	logger    zerolog.Logger
	closer    func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ConnectBalanceWatcher dials the websocket endpoint.
func ConnectBalanceWatcher(ctx context.Context, wsURL string, cache *BalanceCache, logger zerolog.Logger) (*BalanceWatcher, error) {
	client, err := ws.Connect(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket connect: %v", ErrNetwork, err)
	}
	w := newBalanceWatcher(cache, func(addr solana.PublicKey) (accountStream, error) {
		sub, err := client.AccountSubscribe(addr, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, err
		}
		return wsAccountStream{sub: sub}, nil
	}, logger)
	w.closer = client.Close
	return w, nil
}

func newBalanceWatcher(cache *BalanceCache, subscribe subscribeFunc, logger zerolog.Logger) *BalanceWatcher {
	return &BalanceWatcher{
		cache:     cache,
		subscribe: subscribe,
		backoff:   watcherBackoff,
		logger:    logger.With().Str("component", "balance_watcher").Logger(),
	}
}

// Watch subscribes to every address and returns once all initial
// subscriptions are in place. Notifications are handled until ctx ends.
func (w *BalanceWatcher) Watch(ctx context.Context, addrs []solana.PublicKey) error {
	for _, addr := range addrs {
		if err := w.WatchAccount(ctx, addr); err != nil {
			return err
		}
	}
	w.logger.Info().Int("accounts", len(addrs)).Msg("watching balances")
	return nil
}

// WatchAccount adds one address to a running watcher.
func (w *BalanceWatcher) WatchAccount(ctx context.Context, addr solana.PublicKey) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || ctx.Err() != nil {
		return fmt.Errorf("%w: balance watcher stopped", ErrNetwork)
	}
	stream, err := w.subscribe(addr)
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrNetwork, addr, err)
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.receive(ctx, addr, stream)
	}()
	w.logger.Debug().Str("address", addr.String()).Msg("account subscribed")
	return nil
}

func (w *BalanceWatcher) receive(ctx context.Context, addr solana.PublicKey, stream accountStream) {
	for {
		lamports, err := stream.Recv(ctx)
		if err == nil {
			w.cache.Set(addr.String(), lamports)
			w.logger.Debug().Str("address", addr.String()).Uint64("lamports", lamports).Msg("balance changed")
			continue
		}
		stream.Unsubscribe()
		if ctx.Err() != nil {
			return
		}
		next, ok := w.resubscribe(ctx, addr, err)
		if !ok {
			// stale from here on; the guard falls back to a network read
			w.cache.Invalidate(addr.String())
			return
		}
		stream = next
	}
}

func (w *BalanceWatcher) resubscribe(ctx context.Context, addr solana.PublicKey, cause error) (accountStream, bool) {
	for attempt := 1; attempt <= watcherMaxRetries; attempt++ {
		w.logger.Warn().Err(cause).
			Str("address", addr.String()).
			Int("attempt", attempt).
			Msg("account subscription dropped, resubscribing")
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(time.Duration(attempt) * w.backoff):
		}
		next, err := w.subscribe(addr)
		if err == nil {
			w.logger.Info().Str("address", addr.String()).Msg("account subscription restored")
			return next, true
		}
		cause = err
	}
	w.logger.Error().Str("address", addr.String()).Msg("giving up on account subscription")
	return nil, false
}

// Close waits for the receive loops, which exit when the Watch ctx ends,
// and closes the connection.
func (w *BalanceWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
	if w.closer != nil {
		w.closer()
	}
}
