package identity

// UserIdentity adapts a User into the Identity interface for token generation.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// Name returns the user's display name.
func (u UserIdentity) Name() string {
	if u.user == nil {
		return ""
	}
	return u.user.FullName
}

// TokenVersion returns the user's current session version counter.
func (u UserIdentity) TokenVersion() int {
	if u.user == nil {
		return 0
	}
	return u.user.TokenVersion
}

// EmailVerified reports whether the user confirmed their e-mail.
func (u UserIdentity) EmailVerified() bool {
	if u.user == nil {
		return false
	}
	return u.user.EmailValidated
}
