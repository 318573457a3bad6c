// Package identity implements the credential and identity-verification
// lifecycle for the ResearchLLM platform: bearer session tokens, password
// recovery through single-use out-of-band tokens, and e-mail ownership
// verification with resend throttling.
//
// Session tokens:
//   - TokenService signs and validates compact HS256 JWTs carrying the
//     subject id, issuance and expiry times, and a token version. The
//     version is bumped whenever a password reset completes, which retires
//     every session issued before the reset.
//
// Recovery and verification:
//   - Password recovery keeps at most one live token per subject. Issuing a
//     new token replaces the previous one atomically, and consumption is a
//     single conditional update so concurrent attempts resolve to exactly
//     one winner.
//   - E-mail verification tracks a single ticket per subject with a resend
//     cooldown. Confirmation is one-way; once a subject is verified the
//     ticket is destroyed and further confirmations fail.
//
// Outbound mail goes through the Notifier interface. Dispatch is
// best-effort: a notifier failure is logged and never rolls back an issued
// token, since the user may already hold it through another channel.
package identity
