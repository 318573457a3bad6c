package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResets stores recovery tokens, one live slot per user
type PasswordResets interface {
	repository.Repository[*PasswordReset]

	Issue(ctx context.Context, reset *PasswordReset) (*PasswordReset, error)
	IssueTx(ctx context.Context, tx bun.IDB, reset *PasswordReset) (*PasswordReset, error)

	Consume(ctx context.Context, tokenHash string) (*PasswordReset, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string) (*PasswordReset, error)

	DeleteExpired(ctx context.Context) (int64, error)
}

type passwordResets struct {
	repository.Repository[*PasswordReset]
	db *bun.DB
}

var _ PasswordResets = (*passwordResets)(nil)

func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	repo := repository.NewRepository[*PasswordReset](db, repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &passwordResets{
		Repository: repo,
		db:         db,
	}
}

func (r *passwordResets) Issue(ctx context.Context, reset *PasswordReset) (*PasswordReset, error) {
	return r.IssueTx(ctx, r.db, reset)
}

// IssueTx writes the recovery slot through an upsert keyed on user_id. A
// reissue lands on the same row, so the previous token stops working in the
// same statement that records the new one.
func (r *passwordResets) IssueTx(ctx context.Context, tx bun.IDB, reset *PasswordReset) (*PasswordReset, error) {
	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	reset.Status = ResetRequestedStatus
	reset.ConsumedAt = nil

	_, err := tx.NewInsert().
		Model(reset).
		On("CONFLICT (user_id) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("status = EXCLUDED.status").
		Set("expires_at = EXCLUDED.expires_at").
		Set("consumed_at = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return reset, nil
}

func (r *passwordResets) Consume(ctx context.Context, tokenHash string) (*PasswordReset, error) {
	return r.ConsumeTx(ctx, r.db, tokenHash)
}

// ConsumeTx flips the slot to consumed through a single conditional UPDATE.
// Two concurrent consumers race on the same row; the condition guarantees
// exactly one of them sees rows affected.
func (r *passwordResets) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string) (*PasswordReset, error) {
	reset := &PasswordReset{}
	err := tx.NewSelect().
		Model(reset).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("status = ?", ResetConsumedStatus).
		Set("consumed_at = ?", now).
		Set("updated_at = ?", now).
		Where("token_hash = ?", tokenHash).
		Where("status = ?", ResetRequestedStatus).
		Where("expires_at > ?", now).
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"status":     reset.Status,
				"expires_at": reset.ExpiresAt,
			})
	}

	reset.Status = ResetConsumedStatus
	reset.ConsumedAt = &now

	return reset, nil
}

// DeleteExpired sweeps slots that can never be consumed again
func (r *passwordResets) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*PasswordReset)(nil)).
		Where("expires_at <= ?", time.Now()).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
