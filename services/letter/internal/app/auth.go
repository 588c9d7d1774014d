package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"coverletterai/internal/util"
	"coverletterai/pkg/domain"
	"coverletterai/pkg/store"
)

// ExchangeToken trades a valid identity assertion of a registered user for
// that user's access token. Nothing is written.
func (a *App) ExchangeToken(ctx context.Context, idToken string) (domain.User, error) {
	if strings.TrimSpace(idToken) == "" {
		return domain.User{}, ErrIDTokenRequired
	}
	identity, err := a.verifier.Verify(ctx, idToken)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("id token rejected", "op", "token_exchange", "err", err)
		return domain.User{}, ErrInvalidIDToken
	}
	if identity.Email == "" {
		return domain.User{}, ErrInvalidIDToken
	}
	user, ok, err := a.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// SignUp registers the user asserted by idToken. The asserted email must
// equal the supplied one. When the email is already registered the
// existing record is returned together with ErrUserExists.
func (a *App) SignUp(ctx context.Context, email, idToken string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(idToken) == "" {
		return domain.User{}, ErrEmailAndIDTokenRequired
	}
	identity, err := a.verifier.Verify(ctx, idToken)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("id token rejected", "op", "signup", "err", err)
		return domain.User{}, ErrInvalidIDToken
	}
	if !strings.EqualFold(identity.Email, email) {
		return domain.User{}, ErrEmailMismatch
	}

	existing, ok, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if ok {
		return existing, ErrUserExists
	}

	// The check above and Create are not atomic; two concurrent signups for
	// one email can both pass it. Create repeats the check, which narrows
	// the window but does not close it.
	user, err := a.users.Create(ctx, domain.NewUser{
		Email:    email,
		Verified: true,
		GoogleID: identity.Subject,
		Name:     identity.Name,
		Claims:   identity.Claims,
	})
	if errors.Is(err, store.ErrDuplicateUser) {
		existing, ok, lookupErr := a.users.FindByEmail(ctx, email)
		if lookupErr != nil || !ok {
			return domain.User{}, fmt.Errorf("reload existing user: %w", errors.Join(err, lookupErr))
		}
		return existing, ErrUserExists
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	util.LoggerFromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// UserForToken resolves a bearer access token.
func (a *App) UserForToken(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrTokenRequired
	}
	user, ok, err := a.users.FindByToken(ctx, token)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup token: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnknownToken
	}
	return user, nil
}

// UserData returns the caller's own record; asking for another id is forbidden.
func (a *App) UserData(caller domain.User, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) != caller.ID {
		return domain.User{}, ErrForbidden
	}
	return caller, nil
}

// VerifyIDToken checks an identity assertion and returns its subject.
func (a *App) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	if strings.TrimSpace(idToken) == "" {
		return "", ErrIDTokenRequired
	}
	identity, err := a.verifier.Verify(ctx, idToken)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("id token rejected", "op", "verify", "err", err)
		return "", ErrInvalidIDToken
	}
	return identity.Subject, nil
}
