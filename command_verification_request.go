package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RequestVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *RequestVerificationResponse)
}

func (p RequestVerificationMessage) Type() string { return "user.verification_request" }

// RequestVerificationResponse acknowledges the request. Unknown and
// already-verified accounts get the same ack as the happy path.
type RequestVerificationResponse struct {
	Acknowledged bool
}

type RequestVerificationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	cooldown time.Duration
	now      func() time.Time
}

func NewRequestVerificationHandler(repo RepositoryManager, notifier Notifier) *RequestVerificationHandler {
	return &RequestVerificationHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
		cooldown: ResendCooldown,
		now:      time.Now,
	}
}

func (h *RequestVerificationHandler) WithLogger(l Logger) *RequestVerificationHandler {
	h.logger = l
	return h
}

func (h *RequestVerificationHandler) WithCooldown(d time.Duration) *RequestVerificationHandler {
	h.cooldown = d
	return h
}

func (h *RequestVerificationHandler) WithClock(now func() time.Time) *RequestVerificationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RequestVerificationHandler) Execute(ctx context.Context, event RequestVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestVerificationHandler) execute(ctx context.Context, event RequestVerificationMessage) error {
	resp := &RequestVerificationResponse{Acknowledged: true}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := NewOpaqueToken()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	var dispatch bool
	var email string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification")
		}

		if user.EmailValidated {
			return nil
		}

		now := h.now()

		ticket, err := h.repo.VerificationTickets().GetByUserIDTx(ctx, tx, user.ID)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification ticket")
		}

		resendCount := 0
		if ticket != nil {
			if ticket.InCooldown(now, h.cooldown) {
				return ErrCooldownActive
			}
			resendCount = ticket.ResendCount + 1
		}

		next := &VerificationTicket{
			UserID:      user.ID,
			Email:       user.Email,
			CodeHash:    HashOpaqueToken(code),
			ResendCount: resendCount,
			LastSentAt:  now,
			ExpiresAt:   now.Add(VerificationTTL),
		}

		if _, err := h.repo.VerificationTickets().UpsertTx(ctx, tx, next); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification ticket")
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request verification")
	}

	if dispatch {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()

			err := h.notifier.Send(ctx, email, TemplateEmailVerification, map[string]string{
				"token": code,
			})
			if err != nil {
				h.logger.Error("verification notification failed: %v", err)
			}
		}()
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
