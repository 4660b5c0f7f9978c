package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
)

var ErrBridgeRunning = errors.New("bridge already started")

// Feed delivers a team's task changes until ctx ends. *client.Feed implements it.
type Feed interface {
	Subscribe(ctx context.Context, teamID uuid.UUID) (<-chan dto.Change, error)
}

// Bridge forwards the team's change feed into a Store.
type Bridge struct {
	store *Store
	feed  Feed
	log   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBridge(store *Store, feed Feed, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Bridge{store: store, feed: feed, log: log}
}

// Start subscribes to the store's team. A bridge runs at most one subscription.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return ErrBridgeRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, err := b.feed.Subscribe(ctx, b.store.TeamID())
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go func() {
		defer close(done)
		for change := range changes {
			b.store.Apply(change)
		}
		b.log.Debug("change feed ended", slog.String("team_id", b.store.TeamID().String()))
	}()
	return nil
}

// Done is closed when the feed ends, either through Stop or a dropped connection.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return b.done
}

// Stop releases the subscription and waits for pending changes to be applied.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
