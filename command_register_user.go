package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FullName      string `json:"full_name"`
	Company       string `json:"company"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Password      string `json:"password"`
	DefaultRegion string `json:"-"`
	UseHashid     bool   `json:"-"`
	OnResponse    func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User    *User
	Success bool
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, notifier Notifier) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	h.logger = l
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := NewOpaqueToken()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = NormalizeEmail(event.Email)
		user.Phone = normalizePhone(event.Phone, event.DefaultRegion)
		user.FullName = event.FullName
		user.Company = event.Company
		if event.UseHashid {
			if id, err := hashid.NewUUID(user.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		now := time.Now()
		ticket := &VerificationTicket{
			UserID:     user.ID,
			Email:      user.Email,
			CodeHash:   HashOpaqueToken(code),
			LastSentAt: now,
			ExpiresAt:  now.Add(VerificationTTL),
		}

		if _, err = h.repo.VerificationTickets().UpsertTx(ctx, tx, ticket); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create verification ticket")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.dispatchVerification(user.Email, code)

	resp.User = user
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// dispatchVerification is fire and forget. A notifier failure never unwinds
// the registration; the user can ask for a resend.
func (h *RegisterUserHandler) dispatchVerification(email, code string) {
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

func normalizePhone(phone, defaultRegion string) string {
	if phone == "" {
		return ""
	}

	if defaultRegion == "" {
		defaultRegion = "US"
	}

	num, err := phonenumbers.Parse(phone, defaultRegion)
	if err != nil {
		return phone
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
