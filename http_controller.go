package identity

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Middleware captures the route-guard surface the controller depends on
type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
	MakeAPIAuthErrorHandler() func(router.Context, error) error
}

// RegisterAuthRoutes mounts the full credential lifecycle under the
// controller's route table.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	protected := controller.Middleware.ProtectedRoute(
		controller.Config,
		controller.Middleware.MakeAPIAuthErrorHandler(),
	)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("auth.register")

	app.Post(controller.Routes.Login, controller.Login).
		SetName("auth.login")

	app.Get(controller.Routes.Me, controller.Me, protected).
		SetName("auth.me")

	app.Post(controller.Routes.Logout, controller.Logout, protected).
		SetName("auth.logout")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).
		SetName("auth.forgot-password")

	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).
		SetName("auth.reset-password")

	app.Post(controller.Routes.ResendVerification, controller.ResendVerification).
		SetName("auth.resend-verification")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmail).
		SetName("auth.verify-email")

	app.Get(controller.Routes.VerificationStatus, controller.VerificationStatus).
		SetName("auth.verification-status")

	app.Get(controller.Routes.Health, controller.Health).
		SetName("auth.health")
}

type AuthControllerRoutes struct {
	Register           string
	Login              string
	Logout             string
	Me                 string
	ForgotPassword     string
	ResetPassword      string
	ResendVerification string
	VerifyEmail        string
	VerificationStatus string
	Health             string
}

type AuthController struct {
	Debug      bool
	Logger     Logger
	Repo       RepositoryManager
	Auther     Authenticator
	Middleware Middleware
	Config     Config
	Notifier   Notifier
	Routes     *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:           "/auth/register",
			Login:              "/auth/login",
			Logout:             "/auth/logout",
			Me:                 "/auth/me",
			ForgotPassword:     "/auth/forgot-password",
			ResetPassword:      "/auth/reset-password",
			ResendVerification: "/auth/resend-verification",
			VerifyEmail:        "/auth/verify-email",
			VerificationStatus: "/auth/verification-status",
			Health:             "/auth/health",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Middleware == nil {
		panic("Missing route middleware in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.Notifier == nil {
		panic("Missing Notifier in auth controller...")
	}

	return c
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = l
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerMiddleware(mw Middleware) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Middleware = mw
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerNotifier(n Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = n
		return c
	}
}

// RegisterPayload is the registration request body
type RegisterPayload struct {
	FullName string `json:"full_name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Company, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(0, 20)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return a.badRequest(ctx, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	var created *User

	msg := RegisterUserMessage{
		FullName: payload.FullName,
		Company:  payload.Company,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			created = resp.User
		},
	}

	handler := NewRegisterUserHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("register user: %v", err)
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user": created.Profile(),
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.badRequest(ctx, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	token, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("login: %v", err)
		return a.handleError(ctx, err)
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), payload.Email)
	if err != nil {
		a.Logger.Error("login user lookup: %v", err)
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   a.Config.GetTokenExpiration() * 60,
		"user":         user.Profile(),
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.unauthorized(ctx)
	}

	// rejects sessions issued before the last password reset
	if _, err := a.Auther.IdentityFromSession(ctx.Context(), session); err != nil {
		a.Logger.Warn("me session rejected: %v", err)
		return a.unauthorized(ctx)
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), session.GetUserID())
	if err != nil {
		return a.unauthorized(ctx)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user.Profile(),
	})
}

// Logout is a stateless ack; tokens are bearer-only, the client discards its
// copy.
func (a *AuthController) Logout(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "logged_out",
	})
}

// EmailPayload carries a single e-mail field
type EmailPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{
		Email: payload.Email,
	})
	if err != nil {
		a.Logger.Error("forgot password: %v", err)
		return a.handleError(ctx, err)
	}

	// same body whether or not the account exists
	return ctx.JSON(router.StatusOK, map[string]any{
		"status":  "ok",
		"message": "If that account exists, a recovery message is on its way",
	})
}

// ResetPasswordPayload is the recovery finalization body
type ResetPasswordPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)
	err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	})
	if err != nil {
		a.Logger.Error("reset password: %v", err)
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "password_updated",
	})
}

func (a *AuthController) ResendVerification(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	handler := NewRequestVerificationHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	err := handler.Execute(ctx.Context(), RequestVerificationMessage{
		Email: payload.Email,
	})
	if err != nil {
		a.Logger.Error("resend verification: %v", err)
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status":  "ok",
		"message": "If that account needs verification, a message is on its way",
	})
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Query("token", "")
	if token == "" {
		return a.handleError(ctx, ErrVerificationInvalid)
	}

	var email string

	handler := NewConfirmVerificationHandler(a.Repo).WithLogger(a.Logger)
	err := handler.Execute(ctx.Context(), ConfirmVerificationMessage{
		Token: token,
		OnResponse: func(resp *ConfirmVerificationResponse) {
			email = resp.Email
		},
	})
	if err != nil {
		a.Logger.Error("verify email: %v", err)
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "verified",
		"email":  email,
	})
}

func (a *AuthController) VerificationStatus(ctx router.Context) error {
	email := ctx.Query("email", "")
	if email == "" {
		return a.badRequest(ctx, "email is required")
	}

	verified := false
	if user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), email); err == nil {
		verified = user.EmailValidated
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"verified": verified,
	})
}

func (a *AuthController) Health(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (a *AuthController) unauthorized(ctx router.Context) error {
	return ctx.JSON(router.StatusUnauthorized, map[string]any{
		"error": "Unauthorized",
	})
}

func (a *AuthController) badRequest(ctx router.Context, msg string) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":   msg,
			"text_code": "BAD_REQUEST",
		},
	})
}

func (a *AuthController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":    "validation failed",
			"text_code":  "VALIDATION_ERROR",
			"validation": err,
		},
	})
}

// handleError maps rich errors to the HTTP surface. Cooldown rejections get
// 429; adapter failures collapse to a bare 500 so internals never leak.
func (a *AuthController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ctx.JSON(router.StatusInternalServerError, map[string]any{
			"error": map[string]any{
				"message":   "internal server error",
				"text_code": "INTERNAL",
			},
		})
	}

	status := richErr.Code
	if status <= 0 {
		status = router.StatusInternalServerError
	}

	if richErr.TextCode == TextCodeCooldownActive {
		status = http.StatusTooManyRequests
	}

	if status >= router.StatusInternalServerError {
		if a.Debug {
			fmt.Println("======= AUTH ERROR ======")
			fmt.Println(print.MaybePrettyJSON(richErr.Metadata))
			fmt.Println("=========================")
		}
		return ctx.JSON(status, map[string]any{
			"error": map[string]any{
				"message":   "internal server error",
				"text_code": "INTERNAL",
			},
		})
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}
