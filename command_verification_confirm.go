package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ConfirmVerificationMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ConfirmVerificationResponse)
}

func (p ConfirmVerificationMessage) Type() string { return "user.verification_confirm" }

type ConfirmVerificationResponse struct {
	Email   string
	Success bool
}

type ConfirmVerificationHandler struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

func NewConfirmVerificationHandler(repo RepositoryManager) *ConfirmVerificationHandler {
	return &ConfirmVerificationHandler{
		repo:   repo,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *ConfirmVerificationHandler) WithLogger(l Logger) *ConfirmVerificationHandler {
	h.logger = l
	return h
}

func (h *ConfirmVerificationHandler) WithClock(now func() time.Time) *ConfirmVerificationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *ConfirmVerificationHandler) Execute(ctx context.Context, event ConfirmVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute flips is_email_verified exactly once. The ticket is deleted in the
// same transaction, so replaying the code fails the lookup. Confirmation is
// one-way; nothing un-verifies a user.
func (h *ConfirmVerificationHandler) execute(ctx context.Context, event ConfirmVerificationMessage) error {
	resp := &ConfirmVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrVerificationInvalid
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ticket, err := h.repo.VerificationTickets().GetByCodeHashTx(ctx, tx, HashOpaqueToken(event.Token))
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrVerificationInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification ticket")
		}

		if h.now().After(ticket.ExpiresAt) {
			return ErrVerificationInvalid
		}

		if err := h.repo.Users().SetEmailVerifiedTx(ctx, tx, ticket.UserID); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrVerificationInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email as verified")
		}

		if err := h.repo.VerificationTickets().DeleteByUserIDTx(ctx, tx, ticket.UserID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete verification ticket")
		}

		resp.Email = ticket.Email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm verification")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
