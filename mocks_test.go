package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/researchllm/identity"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockAuthenticator implements identity.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	args := m.Called(ctx, identifier, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) SessionFromToken(token string) (identity.Session, error) {
	args := m.Called(token)
	if session, ok := args.Get(0).(identity.Session); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSession(ctx context.Context, session identity.Session) (identity.Identity, error) {
	args := m.Called(ctx, session)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIdentityProvider implements identity.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (identity.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (identity.Identity, error) {
	args := m.Called(ctx, identifier)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConfig implements identity.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return("test-signing-key")
	mockConfig.On("GetTokenExpiration").Return(30)
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	return mockConfig
}

// MockUserTracker implements identity.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	args := m.Called(ctx, identifier)
	if user, ok := args.Get(0).(*identity.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// TestIdentity is a simple implementation of the Identity interface
type TestIdentity struct {
	id           string
	name         string
	email        string
	tokenVersion int
}

func (t TestIdentity) ID() string        { return t.id }
func (t TestIdentity) Name() string      { return t.name }
func (t TestIdentity) Email() string     { return t.email }
func (t TestIdentity) TokenVersion() int { return t.tokenVersion }

// sentMessage is one notifier dispatch captured by stubNotifier
type sentMessage struct {
	Destination  string
	TemplateKind string
	Payload      map[string]string
}

// stubNotifier records dispatches on a channel so tests can wait for the
// fire-and-forget goroutines the handlers spawn.
type stubNotifier struct {
	sent chan sentMessage
	err  error
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{sent: make(chan sentMessage, 8)}
}

func (n *stubNotifier) Send(ctx context.Context, destination, templateKind string, payload map[string]string) error {
	n.sent <- sentMessage{
		Destination:  destination,
		TemplateKind: templateKind,
		Payload:      payload,
	}
	return n.err
}

// waitForSend blocks until the notifier dispatched, or fails the wait
func (n *stubNotifier) waitForSend(timeout time.Duration) (sentMessage, bool) {
	select {
	case msg := <-n.sent:
		return msg, true
	case <-time.After(timeout):
		return sentMessage{}, false
	}
}

// fakeUsers is an in-memory identity.Users. The embedded interface satisfies
// the repository surface; only the methods the handlers reach are implemented.
type fakeUsers struct {
	identity.Users

	mu    sync.Mutex
	users map[uuid.UUID]*identity.User

	attemptedLogins  int
	successfulLogins int
}

func newFakeUsers(users ...*identity.User) *fakeUsers {
	f := &fakeUsers{users: map[uuid.UUID]*identity.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) lookup(identifier string) *identity.User {
	for _, u := range f.users {
		if u.ID.String() == identifier || u.Email == identity.NormalizeEmail(identifier) {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	return f.GetByIdentifierTx(ctx, nil, identifier, criteria...)
}

func (f *fakeUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.lookup(identifier); u != nil {
		return u, nil
	}

	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Register(ctx context.Context, user *identity.User) (*identity.User, error) {
	return f.RegisterTx(ctx, nil, user)
}

func (f *fakeUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *identity.User) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user.Email = identity.NormalizeEmail(user.Email)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.ResetPasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	user.PasswordHash = passwordHash
	user.TokenVersion++
	user.EmailValidated = true
	return nil
}

func (f *fakeUsers) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	return f.SetEmailVerifiedTx(ctx, nil, id)
}

func (f *fakeUsers) SetEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	user.EmailValidated = true
	return nil
}

func (f *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attemptedLogins++
	user.LoginAttempts++
	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successfulLogins++
	user.LoginAttempts = 0
	return nil
}

// fakePasswordResets is an in-memory identity.PasswordResets keeping the
// one-slot-per-user semantics of the real upsert.
type fakePasswordResets struct {
	identity.PasswordResets

	mu    sync.Mutex
	slots map[uuid.UUID]*identity.PasswordReset
}

func newFakePasswordResets() *fakePasswordResets {
	return &fakePasswordResets{slots: map[uuid.UUID]*identity.PasswordReset{}}
}

func (f *fakePasswordResets) Issue(ctx context.Context, reset *identity.PasswordReset) (*identity.PasswordReset, error) {
	return f.IssueTx(ctx, nil, reset)
}

func (f *fakePasswordResets) IssueTx(ctx context.Context, tx bun.IDB, reset *identity.PasswordReset) (*identity.PasswordReset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	reset.Status = identity.ResetRequestedStatus
	reset.ConsumedAt = nil

	f.slots[reset.UserID] = reset
	return reset, nil
}

func (f *fakePasswordResets) Consume(ctx context.Context, tokenHash string) (*identity.PasswordReset, error) {
	return f.ConsumeTx(ctx, nil, tokenHash)
}

func (f *fakePasswordResets) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string) (*identity.PasswordReset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, slot := range f.slots {
		if slot.TokenHash != tokenHash {
			continue
		}
		if slot.Status != identity.ResetRequestedStatus || !now.Before(slot.ExpiresAt) {
			return nil, repository.NewRecordNotFound()
		}

		slot.Status = identity.ResetConsumedStatus
		slot.ConsumedAt = &now
		return slot, nil
	}

	return nil, repository.NewRecordNotFound()
}

// fakeVerificationTickets is an in-memory identity.VerificationTickets
type fakeVerificationTickets struct {
	identity.VerificationTickets

	mu      sync.Mutex
	tickets map[uuid.UUID]*identity.VerificationTicket
}

func newFakeVerificationTickets() *fakeVerificationTickets {
	return &fakeVerificationTickets{tickets: map[uuid.UUID]*identity.VerificationTicket{}}
}

func (f *fakeVerificationTickets) GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.VerificationTicket, error) {
	return f.GetByUserIDTx(ctx, nil, userID)
}

func (f *fakeVerificationTickets) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*identity.VerificationTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ticket, ok := f.tickets[userID]; ok {
		return ticket, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeVerificationTickets) GetByCodeHash(ctx context.Context, codeHash string) (*identity.VerificationTicket, error) {
	return f.GetByCodeHashTx(ctx, nil, codeHash)
}

func (f *fakeVerificationTickets) GetByCodeHashTx(ctx context.Context, tx bun.IDB, codeHash string) (*identity.VerificationTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ticket := range f.tickets {
		if ticket.CodeHash == codeHash {
			return ticket, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeVerificationTickets) Upsert(ctx context.Context, ticket *identity.VerificationTicket, criteria ...repository.UpdateCriteria) (*identity.VerificationTicket, error) {
	return f.UpsertTx(ctx, nil, ticket, criteria...)
}

func (f *fakeVerificationTickets) UpsertTx(ctx context.Context, tx bun.IDB, ticket *identity.VerificationTicket, criteria ...repository.UpdateCriteria) (*identity.VerificationTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}

	f.tickets[ticket.UserID] = ticket
	return ticket, nil
}

func (f *fakeVerificationTickets) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return f.DeleteByUserIDTx(ctx, nil, userID)
}

func (f *fakeVerificationTickets) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.tickets, userID)
	return nil
}

// fakeRepo wires the in-memory repositories into a RepositoryManager.
// RunInTx invokes the function directly; the fakes have no real transactions.
type fakeRepo struct {
	users   *fakeUsers
	resets  *fakePasswordResets
	tickets *fakeVerificationTickets
}

func newFakeRepo(users ...*identity.User) *fakeRepo {
	return &fakeRepo{
		users:   newFakeUsers(users...),
		resets:  newFakePasswordResets(),
		tickets: newFakeVerificationTickets(),
	}
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

func (f *fakeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Users() identity.Users                             { return f.users }
func (f *fakeRepo) PasswordResets() identity.PasswordResets           { return f.resets }
func (f *fakeRepo) VerificationTickets() identity.VerificationTickets { return f.tickets }
