package sessionstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/internal/metrics"
	"github.com/creastat/chatstore/session"
	"go.uber.org/zap"
)

// snapshotLocked builds the persisted projection of the state. Caller holds s.mu.
func (s *Store) snapshotLocked() *session.Snapshot {
	snap := &session.Snapshot{
		Sessions:         make([]session.ChatSession, len(s.state.Sessions)),
		CurrentSessionID: s.state.CurrentSessionID,
	}
	if !s.ephemeralIdentity {
		if s.state.User != nil {
			u := *s.state.User
			snap.User = &u
		}
		snap.IsAuthenticated = s.state.IsAuthenticated
	}
	for i, cs := range s.state.Sessions {
		c := cs.Clone()
		c.Messages = chatstore.TruncateHistory(c.Messages, s.tokenLimit, s.messageLimit)
		snap.Sessions[i] = c
	}
	return snap
}

// persister writes snapshots in the background. Only the latest pending
// snapshot is kept, so a burst of mutations costs one write.
type persister struct {
	store    session.Store
	key      string
	debounce time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending *session.Snapshot

	// writeMu serializes writes and guards version.
	writeMu sync.Mutex
	version int64

	wake      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newPersister(store session.Store, key string, version int64, debounce time.Duration, logger *zap.Logger, m *metrics.Metrics) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	p := &persister{
		store:    store,
		key:      key,
		debounce: debounce,
		logger:   logger,
		metrics:  m,
		version:  version,
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) enqueue(snap *session.Snapshot) {
	p.mu.Lock()
	p.pending = snap
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		if p.debounce > 0 {
			timer := time.NewTimer(p.debounce)
			select {
			case <-p.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if err := p.flush(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("failed to persist state", zap.Error(err))
		}
	}
}

// flush writes the pending snapshot, if any. A failed snapshot is put back
// unless a newer one arrived meanwhile.
func (p *persister) flush(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()

	if snap == nil {
		return nil
	}

	err := p.write(ctx, snap)
	p.metrics.ObservePersist(err)
	if err != nil {
		p.mu.Lock()
		if p.pending == nil {
			p.pending = snap
		}
		p.mu.Unlock()
	}
	return err
}

// write saves snap. A version conflict means another process saved under the
// same key; the local state is the newer intent, so it overwrites.
func (p *persister) write(ctx context.Context, snap *session.Snapshot) error {
	snap.Version = p.version
	err := p.store.Save(ctx, p.key, snap)
	if errors.Is(err, session.ErrVersionConflict) {
		current, loadErr := p.store.Load(ctx, p.key)
		if loadErr != nil {
			return loadErr
		}
		snap.Version = 0
		if current != nil {
			snap.Version = current.Version
		}
		p.logger.Info("snapshot changed underneath, overwriting",
			zap.Int64("local_version", p.version),
			zap.Int64("stored_version", snap.Version))
		err = p.store.Save(ctx, p.key, snap)
	}
	if err != nil {
		return err
	}
	p.version = snap.Version
	return nil
}

func (p *persister) close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		err = p.flush(ctx)
	})
	return err
}
