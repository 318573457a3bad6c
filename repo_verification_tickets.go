package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationTickets stores e-mail ownership challenges, one per user
type VerificationTickets interface {
	repository.Repository[*VerificationTicket]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*VerificationTicket, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationTicket, error)

	GetByCodeHash(ctx context.Context, codeHash string) (*VerificationTicket, error)
	GetByCodeHashTx(ctx context.Context, tx bun.IDB, codeHash string) (*VerificationTicket, error)

	Upsert(ctx context.Context, ticket *VerificationTicket, criteria ...repository.UpdateCriteria) (*VerificationTicket, error)
	UpsertTx(ctx context.Context, tx bun.IDB, ticket *VerificationTicket, criteria ...repository.UpdateCriteria) (*VerificationTicket, error)

	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type verificationTickets struct {
	repository.Repository[*VerificationTicket]
	db *bun.DB
}

var _ VerificationTickets = (*verificationTickets)(nil)

func NewVerificationTicketsRepository(db *bun.DB) VerificationTickets {
	repo := repository.NewRepository[*VerificationTicket](db, repository.ModelHandlers[*VerificationTicket]{
		NewRecord: func() *VerificationTicket {
			return &VerificationTicket{}
		},
		GetID: func(record *VerificationTicket) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *VerificationTicket, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &verificationTickets{
		Repository: repo,
		db:         db,
	}
}

func (r *verificationTickets) GetByUserID(ctx context.Context, userID uuid.UUID) (*VerificationTicket, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *verificationTickets) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationTicket, error) {
	ticket := &VerificationTicket{}
	err := tx.NewSelect().
		Model(ticket).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return ticket, nil
}

func (r *verificationTickets) GetByCodeHash(ctx context.Context, codeHash string) (*VerificationTicket, error) {
	return r.GetByCodeHashTx(ctx, r.db, codeHash)
}

func (r *verificationTickets) GetByCodeHashTx(ctx context.Context, tx bun.IDB, codeHash string) (*VerificationTicket, error) {
	ticket := &VerificationTicket{}
	err := tx.NewSelect().
		Model(ticket).
		Where("?TableAlias.code_hash = ?", codeHash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return ticket, nil
}

func (r *verificationTickets) Upsert(ctx context.Context, ticket *VerificationTicket, criteria ...repository.UpdateCriteria) (*VerificationTicket, error) {
	return r.UpsertTx(ctx, r.db, ticket, criteria...)
}

// UpsertTx re-stamps the single per-user slot. A resend replaces the code
// and the send timestamp in place.
func (r *verificationTickets) UpsertTx(ctx context.Context, tx bun.IDB, ticket *VerificationTicket, criteria ...repository.UpdateCriteria) (*VerificationTicket, error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}

	_, err := tx.NewInsert().
		Model(ticket).
		On("CONFLICT (user_id) DO UPDATE").
		Set("code_hash = EXCLUDED.code_hash").
		Set("resend_count = EXCLUDED.resend_count").
		Set("last_sent_at = EXCLUDED.last_sent_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return ticket, nil
}

func (r *verificationTickets) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.DeleteByUserIDTx(ctx, r.db, userID)
}

func (r *verificationTickets) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*VerificationTicket)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)

	return err
}
