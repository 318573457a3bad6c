package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	Reset   *PasswordReset
	Success bool
}

type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithLogger(l Logger) *FinalizePasswordResetHandler {
	h.logger = l
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute consumes the recovery token and swaps the password inside one
// transaction. Every way the token can be bad collapses to ErrRecoveryInvalid;
// the caller learns nothing about which check failed.
func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return ErrRecoveryInvalid
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset, err := h.repo.PasswordResets().ConsumeTx(ctx, tx, HashOpaqueToken(event.Token))
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrRecoveryInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume recovery token")
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, reset.UserID, hash); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrRecoveryInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}

		resp.Reset = reset
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
