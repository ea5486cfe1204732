package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence"
)

// Publisher sends snapshot notifications; *amqp.Client implements it.
type Publisher interface {
	PublishSnapshot(ctx context.Context, msg *amqp.SnapshotMessage) error
}

// RevisionReader is implemented by backends that number their saves.
type RevisionReader interface {
	Revision(ctx context.Context) (int64, error)
}

// PublishingPersistence saves through the wrapped backend and announces every
// successful save. Saving is what matters; a failed publish is only logged.
type PublishingPersistence struct {
	inner     persistence.Persistence
	publisher Publisher
	logger    *log.Logger
}

var _ persistence.Persistence = (*PublishingPersistence)(nil)

func NewPublishingPersistence(inner persistence.Persistence, publisher Publisher, logger *log.Logger) *PublishingPersistence {
	if logger == nil {
		logger = log.Discard()
	}
	return &PublishingPersistence{
		inner:     inner,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentAMQP),
	}
}

func (p *PublishingPersistence) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	return p.inner.LoadTransactions(ctx)
}

func (p *PublishingPersistence) LoadSettings(ctx context.Context) (core.Settings, error) {
	return p.inner.LoadSettings(ctx)
}

func (p *PublishingPersistence) SaveTransactions(ctx context.Context, txns []core.Transaction) error {
	if err := p.inner.SaveTransactions(ctx, txns); err != nil {
		return err
	}
	p.publish(ctx, amqp.KindTransactions, len(txns))
	return nil
}

func (p *PublishingPersistence) SaveSettings(ctx context.Context, s core.Settings) error {
	if err := p.inner.SaveSettings(ctx, s); err != nil {
		return err
	}
	p.publish(ctx, amqp.KindSettings, len(s.CurrencyRates))
	return nil
}

func (p *PublishingPersistence) publish(ctx context.Context, kind amqp.SnapshotKind, count int) {
	if p.publisher == nil {
		p.logger.WarnContext(ctx, "AMQP client not available, skipping snapshot message")
		return
	}

	var revision int64
	if rr, ok := p.inner.(RevisionReader); ok {
		rev, err := rr.Revision(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to read revision", log.FieldError, err)
		}
		revision = rev
	}

	msg := amqp.NewSnapshotMessage(kind, revision, count)
	if err := p.publisher.PublishSnapshot(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish snapshot message",
			log.FieldMessageID, msg.ID.String(),
			log.FieldRevision, revision,
			log.FieldOperation, log.OpPublish,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
	}
}

// Close closes the wrapped backend and the publisher when they hold resources.
func (p *PublishingPersistence) Close() error {
	var errs []error

	if c, ok := p.inner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := p.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	return errors.Join(errs...)
}
