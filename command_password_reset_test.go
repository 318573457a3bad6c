package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/researchllm/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecoveryUser(t *testing.T, email, password string) *identity.User {
	t.Helper()

	hash, err := identity.HashPassword(password)
	require.NoError(t, err)

	return &identity.User{
		ID:             uuid.New(),
		FullName:       "Recovery User",
		Email:          email,
		PasswordHash:   hash,
		EmailValidated: true,
	}
}

func TestInitializePasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("known account stores a hash and mails the plaintext", func(t *testing.T) {
		user := newRecoveryUser(t, "known@example.com", "password1234")
		repo := newFakeRepo(user)
		notifier := newStubNotifier()

		handler := identity.NewInitializePasswordResetHandler(repo, notifier).WithLogger(testLogger{})

		var acked bool
		err := handler.Execute(ctx, identity.InitializePasswordResetMessage{
			Email: user.Email,
			OnResponse: func(resp *identity.InitializePasswordResetResponse) {
				acked = resp.Acknowledged
			},
		})

		require.NoError(t, err)
		assert.True(t, acked)

		msg, ok := notifier.waitForSend(2 * time.Second)
		require.True(t, ok, "expected a recovery message to be dispatched")
		assert.Equal(t, user.Email, msg.Destination)
		assert.Equal(t, identity.TemplatePasswordReset, msg.TemplateKind)

		plaintext := msg.Payload["token"]
		require.NotEmpty(t, plaintext)

		slot, err := repo.PasswordResets().Consume(ctx, identity.HashOpaqueToken(plaintext))
		require.NoError(t, err)
		assert.Equal(t, user.ID, slot.UserID)

		// the store never holds the plaintext
		assert.NotEqual(t, plaintext, slot.TokenHash)
	})

	t.Run("unknown account gets the same ack and no dispatch", func(t *testing.T) {
		repo := newFakeRepo()
		notifier := newStubNotifier()

		handler := identity.NewInitializePasswordResetHandler(repo, notifier).WithLogger(testLogger{})

		var acked bool
		err := handler.Execute(ctx, identity.InitializePasswordResetMessage{
			Email: "nobody@example.com",
			OnResponse: func(resp *identity.InitializePasswordResetResponse) {
				acked = resp.Acknowledged
			},
		})

		require.NoError(t, err)
		assert.True(t, acked)

		_, ok := notifier.waitForSend(100 * time.Millisecond)
		assert.False(t, ok, "no message should be dispatched for unknown accounts")
	})

	t.Run("reissue replaces the previous token", func(t *testing.T) {
		user := newRecoveryUser(t, "reissue@example.com", "password1234")
		repo := newFakeRepo(user)
		notifier := newStubNotifier()

		handler := identity.NewInitializePasswordResetHandler(repo, notifier).WithLogger(testLogger{})

		require.NoError(t, handler.Execute(ctx, identity.InitializePasswordResetMessage{Email: user.Email}))
		first, ok := notifier.waitForSend(2 * time.Second)
		require.True(t, ok)

		require.NoError(t, handler.Execute(ctx, identity.InitializePasswordResetMessage{Email: user.Email}))
		second, ok := notifier.waitForSend(2 * time.Second)
		require.True(t, ok)

		// old token stopped working the moment the new one was issued
		_, err := repo.PasswordResets().Consume(ctx, identity.HashOpaqueToken(first.Payload["token"]))
		assert.Error(t, err)

		_, err = repo.PasswordResets().Consume(ctx, identity.HashOpaqueToken(second.Payload["token"]))
		assert.NoError(t, err)
	})
}

func TestFinalizePasswordReset(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T, repo *fakeRepo, user *identity.User) string {
		t.Helper()

		token, err := identity.NewOpaqueToken()
		require.NoError(t, err)

		_, err = repo.PasswordResets().Issue(ctx, &identity.PasswordReset{
			UserID:    user.ID,
			Email:     user.Email,
			TokenHash: identity.HashOpaqueToken(token),
			ExpiresAt: time.Now().Add(identity.RecoveryTokenTTL),
		})
		require.NoError(t, err)

		return token
	}

	t.Run("valid token swaps the password and bumps the session version", func(t *testing.T) {
		user := newRecoveryUser(t, "finalize@example.com", "old-password-1")
		repo := newFakeRepo(user)
		token := issue(t, repo, user)

		versionBefore := user.TokenVersion

		handler := identity.NewFinalizePasswordResetHandler(repo).WithLogger(testLogger{})

		var success bool
		err := handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    token,
			Password: "new-password-12",
			OnResponse: func(resp *identity.FinalizePasswordResetResponse) {
				success = resp.Success
			},
		})

		require.NoError(t, err)
		assert.True(t, success)

		stored, err := repo.Users().GetByIdentifier(ctx, user.Email)
		require.NoError(t, err)
		assert.NoError(t, identity.ComparePasswordAndHash("new-password-12", stored.PasswordHash))
		assert.Error(t, identity.ComparePasswordAndHash("old-password-1", stored.PasswordHash))
		assert.Equal(t, versionBefore+1, stored.TokenVersion)
	})

	t.Run("token works exactly once", func(t *testing.T) {
		user := newRecoveryUser(t, "once@example.com", "old-password-1")
		repo := newFakeRepo(user)
		token := issue(t, repo, user)

		handler := identity.NewFinalizePasswordResetHandler(repo).WithLogger(testLogger{})

		err := handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    token,
			Password: "new-password-12",
		})
		require.NoError(t, err)

		err = handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    token,
			Password: "another-password-12",
		})
		assert.Equal(t, identity.ErrRecoveryInvalid, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		user := newRecoveryUser(t, "expired@example.com", "old-password-1")
		repo := newFakeRepo(user)

		token, err := identity.NewOpaqueToken()
		require.NoError(t, err)

		_, err = repo.PasswordResets().Issue(ctx, &identity.PasswordReset{
			UserID:    user.ID,
			Email:     user.Email,
			TokenHash: identity.HashOpaqueToken(token),
			ExpiresAt: time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)

		handler := identity.NewFinalizePasswordResetHandler(repo).WithLogger(testLogger{})

		err = handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    token,
			Password: "new-password-12",
		})
		assert.Equal(t, identity.ErrRecoveryInvalid, err)
	})

	t.Run("unknown and empty tokens are rejected the same way", func(t *testing.T) {
		repo := newFakeRepo()
		handler := identity.NewFinalizePasswordResetHandler(repo).WithLogger(testLogger{})

		err := handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    "0000000000000000000000000000000000000000000000000000000000000000",
			Password: "new-password-12",
		})
		assert.Equal(t, identity.ErrRecoveryInvalid, err)

		err = handler.Execute(ctx, identity.FinalizePasswordResetMessage{
			Token:    "",
			Password: "new-password-12",
		})
		assert.Equal(t, identity.ErrRecoveryInvalid, err)
	})

	t.Run("two concurrent consumers get exactly one winner", func(t *testing.T) {
		user := newRecoveryUser(t, "race@example.com", "old-password-1")
		repo := newFakeRepo(user)
		token := issue(t, repo, user)

		handler := identity.NewFinalizePasswordResetHandler(repo).WithLogger(testLogger{})

		var wg sync.WaitGroup
		errs := make([]error, 2)

		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = handler.Execute(ctx, identity.FinalizePasswordResetMessage{
					Token:    token,
					Password: "new-password-12",
				})
			}(i)
		}

		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.Equal(t, identity.ErrRecoveryInvalid, err)
			}
		}

		assert.Equal(t, 1, winners)
	})
}
