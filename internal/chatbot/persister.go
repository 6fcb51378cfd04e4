package chatbot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"SupportChat/internal/session"
	"SupportChat/internal/storage"
)

const writeTimeout = 10 * time.Second

// persister mirrors log changes to durable storage in the background.
// The first change it observes is the startup hydration and is never written.
type persister struct {
	store  storage.Store
	logger *slog.Logger
	wg     *conc.WaitGroup

	mu       sync.Mutex
	skipNext bool
	seq      uint64

	writeMu sync.Mutex
	applied uint64
}

func newPersister(store storage.Store, logger *slog.Logger, wg *conc.WaitGroup) *persister {
	return &persister{
		store:    store,
		logger:   logger,
		wg:       wg,
		skipNext: true,
	}
}

func (p *persister) onChange(change session.Change) {
	p.mu.Lock()
	if p.skipNext {
		p.skipNext = false
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	p.wg.Go(func() {
		p.write(seq, change)
	})
}

func (p *persister) write(seq uint64, change session.Change) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// a newer change already reached storage
	if seq < p.applied {
		p.logger.Debug("skipping outdated write", "seq", seq, "applied", p.applied)
		return
	}
	p.applied = seq

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if change.Kind == session.ChangeCleared {
		if err := p.store.Remove(ctx); err != nil {
			p.logger.Error("failed to remove stored conversation", "error", err)
			return
		}
		p.logger.Info("stored conversation removed")
		return
	}

	if err := p.store.Save(ctx, change.Log); err != nil {
		p.logger.Error("failed to save conversation", "error", err, "turns", len(change.Log))
		return
	}
	p.logger.Debug("conversation saved", "turns", len(change.Log))
}
