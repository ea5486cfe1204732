// Package worker copies the primary SQLite snapshot to the Google Sheets
// backup whenever it changes.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/log"
	"bilancio/internal/persistence"

	"golang.org/x/sync/singleflight"
)

// Source is the database being mirrored.
type Source interface {
	persistence.TransactionLoader
	persistence.SettingsLoader
	Revision(ctx context.Context) (int64, error)
}

// Target receives full snapshots.
type Target interface {
	persistence.TransactionSaver
	persistence.SettingsSaver
}

// MirrorWorker copies whole snapshots from Source to Target. Concurrent
// triggers (a message and a tick, say) share one copy.
type MirrorWorker struct {
	source Source
	target Target
	logger *log.Logger
	group  singleflight.Group

	mu       sync.Mutex
	mirrored int64
	synced   bool
}

func NewMirrorWorker(source Source, target Target, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		source: source,
		target: target,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Mirrored returns the last revision copied and whether any copy happened.
func (w *MirrorWorker) Mirrored() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mirrored, w.synced
}

// HandleSnapshotMessage processes one notification from the queue. Messages
// for a revision already mirrored are acknowledged without work.
func (w *MirrorWorker) HandleSnapshotMessage(ctx context.Context, msg *amqp.SnapshotMessage) error {
	w.logger.DebugContext(ctx, "Processing snapshot message",
		log.FieldMessageID, msg.ID.String(),
		log.FieldRevision, msg.Revision,
		"kind", msg.Kind)

	if rev, ok := w.Mirrored(); ok && msg.Revision <= rev {
		return nil
	}
	// A copy already in flight may have read an older revision; joining it
	// is not enough, so copy again when it fell short.
	for attempt := 0; attempt < 2; attempt++ {
		rev, err := w.Mirror(ctx)
		if err != nil {
			return fmt.Errorf("mirror revision %d: %w", msg.Revision, err)
		}
		if rev >= msg.Revision {
			return nil
		}
	}
	w.logger.WarnContext(ctx, "Source revision behind snapshot message",
		log.FieldOperation, log.OpMirror,
		log.FieldMessageID, msg.ID.String(),
		log.FieldRevision, msg.Revision)
	return nil
}

// Mirror copies the current snapshot if the source moved since the last copy
// and returns the source revision.
func (w *MirrorWorker) Mirror(ctx context.Context) (int64, error) {
	return w.mirror(ctx, false)
}

// StartupMirror copies unconditionally; the target may have been edited or
// wiped while the worker was down.
func (w *MirrorWorker) StartupMirror(ctx context.Context) error {
	_, err := w.mirror(ctx, true)
	return err
}

func (w *MirrorWorker) mirror(ctx context.Context, force bool) (int64, error) {
	key := "mirror"
	if force {
		key = "mirror-force"
	}
	v, err, _ := w.group.Do(key, func() (interface{}, error) {
		return w.copySnapshot(ctx, force)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (w *MirrorWorker) copySnapshot(ctx context.Context, force bool) (int64, error) {
	start := time.Now()

	rev, err := w.source.Revision(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source revision: %w", err)
	}
	if last, ok := w.Mirrored(); ok && !force && rev == last {
		return rev, nil
	}

	txns, err := w.source.LoadTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load transactions: %w", err)
	}
	settings, err := w.source.LoadSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	if err := w.target.SaveTransactions(ctx, txns); err != nil {
		return 0, fmt.Errorf("save transactions to mirror: %w", err)
	}
	if err := w.target.SaveSettings(ctx, settings); err != nil {
		return 0, fmt.Errorf("save settings to mirror: %w", err)
	}

	w.mu.Lock()
	w.mirrored = rev
	w.synced = true
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Snapshot mirrored",
		log.FieldOperation, log.OpMirror,
		log.FieldRevision, rev,
		log.FieldCount, len(txns),
		log.FieldDuration, time.Since(start).Milliseconds())
	return rev, nil
}

// Run reconciles every interval until ctx is done, in case messages were lost.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Mirror(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic mirror failed",
					log.FieldOperation, log.OpMirror,
					log.FieldError, err)
			}
		}
	}
}
