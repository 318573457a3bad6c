package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse acknowledges the request. Acknowledged is
// true whether or not the account exists; nothing here reveals which.
type InitializePasswordResetResponse struct {
	Acknowledged bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, notifier Notifier) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(l Logger) *InitializePasswordResetHandler {
	h.logger = l
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Acknowledged: true}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := NewOpaqueToken()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate recovery token")
	}

	var dispatch bool
	var email string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// unknown account, same ack as the happy path
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		now := time.Now()
		reset := &PasswordReset{
			UserID:    user.ID,
			Email:     user.Email,
			TokenHash: HashOpaqueToken(token),
			ExpiresAt: now.Add(RecoveryTokenTTL),
		}

		if _, err := h.repo.PasswordResets().IssueTx(ctx, tx, reset); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset record")
		}

		dispatch = true
		email = user.Email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if dispatch {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()

			err := h.notifier.Send(ctx, email, TemplatePasswordReset, map[string]string{
				"token": token,
			})
			if err != nil {
				// the token stays live, the user can retry through any channel
				h.logger.Error("password reset notification failed: %v", err)
			}
		}()
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
