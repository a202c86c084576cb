// Package identity is the credential side of the house: account creation,
// password verification, password change and reset. It knows nothing about
// roles or approval state; that is the profile gate's job.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/store"
)

// ErrBadCredentials covers both unknown accounts and wrong passwords.
var ErrBadCredentials = errors.New("invalid email or password")

const (
	minPasswordLength = 6
	resetTokenTTL     = 1 * time.Hour
)

type credentialDoc struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type resetDoc struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store    store.Store
	mailer   mail.Mailer
	resetURL string
	now      func() time.Time
}

func NewService(st store.Store, mailer mail.Mailer, resetURL string) *Service {
	return &Service{store: st, mailer: mailer, resetURL: resetURL, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validate(email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", apperr.Validationf("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return "", apperr.Validationf("password must be at least %d characters", minPasswordLength)
	}
	return email, nil
}

// Register creates a credential record for a new account.
func (s *Service) Register(ctx context.Context, email, password string) error {
	email, err := validate(email, password)
	if err != nil {
		return err
	}

	var existing credentialDoc
	err = s.store.Get(ctx, store.Credentials, email, &existing)
	if err == nil {
		return apperr.Validationf("an account with this email already exists")
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "identity.hash")
	}
	return s.store.Put(ctx, store.Credentials, email, credentialDoc{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	})
}

// CreateAccountDetached is the privileged admin user-creation path. On the
// server there is no ambient session to disturb, but the separate entry
// point keeps the admin flow explicit and lets it evolve independently.
func (s *Service) CreateAccountDetached(ctx context.Context, email, password string) error {
	return s.Register(ctx, email, password)
}

// Authenticate verifies email+password. Unknown accounts and bad passwords
// are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	var cred credentialDoc
	err := s.store.Get(ctx, store.Credentials, email, &cred)
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrBadCredentials
	}
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}

// ChangePassword re-authenticates with the current password before storing
// the new one.
func (s *Service) ChangePassword(ctx context.Context, email, current, next string) error {
	email, err := validate(email, next)
	if err != nil {
		return err
	}
	if err := s.Authenticate(ctx, email, current); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "identity.hash")
	}
	return s.store.Update(ctx, store.Credentials, email, store.Fields{
		"passwordHash": string(hash),
	})
}

// SendPasswordReset issues a one-time reset token and mails the reset link.
// Unknown accounts are reported as not found so the caller can decide how
// much to reveal.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	var cred credentialDoc
	if err := s.store.Get(ctx, store.Credentials, email, &cred); err != nil {
		return err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return errors.Wrap(err, "identity.reset.token")
	}
	token := hex.EncodeToString(buf)

	err := s.store.Put(ctx, store.PasswordResets, hashToken(token), resetDoc{
		Email:     email,
		ExpiresAt: s.now().Add(resetTokenTTL).UTC(),
	})
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s?token=%s", s.resetURL, token)
	return s.mailer.Send(ctx, mail.PasswordReset(email, link))
}

// ResetPassword consumes a reset token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	if len(next) < minPasswordLength {
		return apperr.Validationf("password must be at least %d characters", minPasswordLength)
	}

	key := hashToken(token)
	var reset resetDoc
	if err := s.store.Get(ctx, store.PasswordResets, key, &reset); err != nil {
		return err
	}
	if s.now().After(reset.ExpiresAt) {
		// expired tokens are swept on use
		_ = s.store.Delete(ctx, store.PasswordResets, key)
		return errors.Wrap(apperr.ErrNotFound, "reset token expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "identity.hash")
	}
	err = s.store.Update(ctx, store.Credentials, reset.Email, store.Fields{
		"passwordHash": string(hash),
	})
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, store.PasswordResets, key)
}

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
