package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

// Reason explains a validation outcome.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonMissing        Reason = "missing"
	ReasonUserMalformed  Reason = "user_malformed"
	ReasonUserIncomplete Reason = "user_incomplete"
	ReasonTokenExpired   Reason = "token_expired"
	ReasonTokenInvalid   Reason = "token_invalid"
	ReasonTokenTooShort  Reason = "token_too_short"
	ReasonStoreError     Reason = "store_error"
)

// Result is the outcome of checking persisted session data.
type Result struct {
	Valid  bool
	Reason Reason
	Token  Token
	User   *domain.User
}

// Validator decides whether a client's persisted session is usable. Any
// invalid data it finds is removed from the store before it returns, so no
// other component can read it.
type Validator struct {
	store  *Store
	clock  Clock
	maxAge time.Duration
}

func NewValidator(store *Store, clock Clock, maxAge time.Duration) *Validator {
	if clock == nil {
		clock = SystemClock()
	}
	if maxAge <= 0 {
		maxAge = MaxTokenAge
	}
	return &Validator{store: store, clock: clock, maxAge: maxAge}
}

// Validate reports whether the persisted session is valid.
func (v *Validator) Validate(ctx context.Context) bool {
	return v.Check(ctx).Valid
}

// Check runs the validation and reports why it failed. It never returns an
// error: unreadable data is an invalid session.
func (v *Validator) Check(ctx context.Context) Result {
	res := v.check(ctx)
	observability.SessionValidationsTotal.WithLabelValues(string(res.Reason)).Inc()
	return res
}

func (v *Validator) check(ctx context.Context) Result {
	rawToken, rawUser, found, err := v.store.Load(ctx)
	if err != nil {
		slog.Warn("session store unreadable during validation",
			slog.String("error", err.Error()))
		return Result{Reason: ReasonStoreError}
	}
	if !found {
		return Result{Reason: ReasonMissing}
	}

	user, err := domain.ParseUser(rawUser)
	if err != nil {
		reason := ReasonUserIncomplete
		if errors.Is(err, domain.ErrUserMalformed) {
			reason = ReasonUserMalformed
		}
		return v.reject(ctx, reason)
	}

	tok, err := DecodeToken(rawToken)
	if err != nil {
		return v.reject(ctx, ReasonTokenInvalid)
	}

	if tok.Kind == TokenFabricated {
		if tok.Expired(v.clock.Now(), v.maxAge) {
			return v.reject(ctx, ReasonTokenExpired)
		}
		return Result{Valid: true, Reason: ReasonOK, Token: tok, User: user}
	}

	if len(tok.Raw) <= minOpaqueTokenLength {
		return v.reject(ctx, ReasonTokenTooShort)
	}
	if tok.Legacy {
		slog.Warn("accepted untagged opaque session token",
			slog.Int("length", len(tok.Raw)),
			slog.String("username", user.Username))
	}
	return Result{Valid: true, Reason: ReasonOK, Token: tok, User: user}
}

func (v *Validator) reject(ctx context.Context, reason Reason) Result {
	if err := v.store.Clear(ctx); err != nil {
		slog.Warn("failed to clear invalid session",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
	}
	slog.Debug("persisted session rejected", slog.String("reason", string(reason)))
	return Result{Reason: reason}
}
