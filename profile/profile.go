// Package profile is the account gate: it turns identity-provider sessions
// into application-level authorization decisions. A signed-in session means
// nothing here until the profile behind it is active and not removed.
package profile

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/store"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// Ensure upserts the profile for email. Absent profiles are created with the
// given role and activeDefault; existing ones are reconciled field by field:
// only a differing role, or flags missing from legacy documents, are touched.
// Safe to call on every login.
func (s *Service) Ensure(ctx context.Context, email string, role model.Role, activeDefault bool) (model.AccountProfile, error) {
	if role == "" {
		role = model.RoleUser
	}

	var raw map[string]any
	err := s.store.Get(ctx, store.Profiles, email, &raw)
	if errors.Is(err, apperr.ErrNotFound) {
		p := model.AccountProfile{
			Email:     email,
			Role:      role,
			Active:    activeDefault,
			Deleted:   false,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.Put(ctx, store.Profiles, email, p); err != nil {
			return model.AccountProfile{}, err
		}
		return p, nil
	}
	if err != nil {
		return model.AccountProfile{}, err
	}

	updates := store.Fields{}
	if current, _ := raw["role"].(string); current != string(role) {
		updates["role"] = role
	}
	if _, ok := raw["active"]; !ok {
		updates["active"] = activeDefault
	}
	if _, ok := raw["deleted"]; !ok {
		updates["deleted"] = false
	}
	if len(updates) > 0 {
		if err := s.store.Update(ctx, store.Profiles, email, updates); err != nil {
			return model.AccountProfile{}, err
		}
	}

	return s.Get(ctx, email)
}

func (s *Service) Get(ctx context.Context, email string) (model.AccountProfile, error) {
	var p model.AccountProfile
	err := s.store.Get(ctx, store.Profiles, email, &p)
	return p, err
}

func (s *Service) List(ctx context.Context) ([]model.AccountProfile, error) {
	var profiles []model.AccountProfile
	err := s.store.Query(ctx, store.Profiles, nil, &profiles)
	return profiles, err
}

// SetStatus enables or disables an account. Re-enabling implies un-deleting,
// so deleted is always cleared here.
func (s *Service) SetStatus(ctx context.Context, email string, active bool) error {
	return s.store.Update(ctx, store.Profiles, email, store.Fields{
		"active":  active,
		"deleted": false,
	})
}

// SoftDelete disables the account and marks it removed. The record itself is
// kept for the audit trail; nothing ever hard-deletes a profile.
func (s *Service) SoftDelete(ctx context.Context, email string) error {
	return s.store.Update(ctx, store.Profiles, email, store.Fields{
		"active":  false,
		"deleted": true,
	})
}

// UpdateRecoveryEmail is the only self-service profile mutation.
func (s *Service) UpdateRecoveryEmail(ctx context.Context, email, recovery string) (model.AccountProfile, error) {
	if recovery == "" {
		return model.AccountProfile{}, apperr.Validationf("recovery email is required")
	}
	err := s.store.Update(ctx, store.Profiles, email, store.Fields{
		"recoveryEmail": recovery,
	})
	if err != nil {
		return model.AccountProfile{}, err
	}
	return s.Get(ctx, email)
}

// Authorize is the composed gate run at every login path.
//
// A removed profile always fails, whatever its other flags. An inactive one
// fails as pending. Role handling differs by entry point and the asymmetry is
// deliberate: the generic login (strict=false) re-provisions a mismatched
// role through Ensure, while the admin entry point (strict=true) never
// silently grants admin and rejects instead.
func (s *Service) Authorize(ctx context.Context, email string, requiredRole model.Role, strict bool) (model.AccountProfile, error) {
	p, err := s.Get(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		if strict {
			return model.AccountProfile{}, errors.Wrap(apperr.ErrInsufficientRole, email)
		}
		p, err = s.Ensure(ctx, email, requiredRole, true)
	}
	if err != nil {
		return model.AccountProfile{}, err
	}

	if p.Deleted {
		return model.AccountProfile{}, errors.Wrap(apperr.ErrAccountRemoved, email)
	}
	if !p.Active {
		return model.AccountProfile{}, errors.Wrap(apperr.ErrAccountPending, email)
	}

	if requiredRole != "" && p.Role != requiredRole {
		if strict {
			return model.AccountProfile{}, errors.Wrapf(apperr.ErrInsufficientRole, "%s is %s", email, p.Role)
		}
		return s.Ensure(ctx, email, requiredRole, true)
	}
	return p, nil
}
