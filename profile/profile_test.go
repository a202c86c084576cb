package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/store"
)

func newTestService() *Service {
	s := NewService(store.NewMemory())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestEnsureCreatesPendingProfile(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	p, err := s.Ensure(ctx, "new@example.com", model.RoleUser, false)
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, model.RoleUser, p.Role)
	assert.False(t, p.Active)
	assert.False(t, p.Deleted)
	assert.True(t, p.Pending())
	assert.Equal(t, "Pending approval", p.StatusLabel())
}

func TestEnsureIsIdempotent(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	first, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)
	second, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureReconcilesRole(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)

	p, err := s.Ensure(ctx, "user@example.com", model.RoleAdmin, true)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
}

func TestEnsureFillsLegacyFlags(t *testing.T) {
	st := store.NewMemory()
	s := NewService(st)
	ctx := context.Background()

	// a legacy document with no active/deleted flags at all
	err := st.Put(ctx, store.Profiles, "old@example.com", map[string]any{
		"email": "old@example.com",
		"role":  "user",
	})
	require.NoError(t, err)

	p, err := s.Ensure(ctx, "old@example.com", model.RoleUser, true)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.False(t, p.Deleted)
}

func TestSetStatusClearsDeleted(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, "user@example.com"))

	require.NoError(t, s.SetStatus(ctx, "user@example.com", true))

	p, err := s.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.False(t, p.Deleted)
}

func TestSoftDeleteKeepsRecord(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, "user@example.com"))

	p, err := s.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, p.Deleted)
	assert.False(t, p.Active)
	assert.Equal(t, "Deleted", p.StatusLabel())
}

func TestAuthorizePendingAccount(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "pending@example.com", model.RoleUser, false)
	require.NoError(t, err)

	_, err = s.Authorize(ctx, "pending@example.com", "", false)
	assert.ErrorIs(t, err, apperr.ErrAccountPending)
}

func TestAuthorizeRemovedAccountAlwaysFails(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "gone@example.com", model.RoleAdmin, true)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, "gone@example.com"))

	for _, strict := range []bool{false, true} {
		_, err = s.Authorize(ctx, "gone@example.com", model.RoleAdmin, strict)
		assert.ErrorIs(t, err, apperr.ErrAccountRemoved)
	}
}

func TestAuthorizeStrictRejectsNonAdmin(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)

	_, err = s.Authorize(ctx, "user@example.com", model.RoleAdmin, true)
	assert.ErrorIs(t, err, apperr.ErrInsufficientRole)

	// the strict gate must not have upgraded the role as a side effect
	p, err := s.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, p.Role)
}

func TestAuthorizeStrictRejectsAbsentProfile(t *testing.T) {
	s := newTestService()

	_, err := s.Authorize(context.Background(), "nobody@example.com", model.RoleAdmin, true)
	assert.ErrorIs(t, err, apperr.ErrInsufficientRole)
}

func TestAuthorizeLenientReprovisionsRole(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "user@example.com", model.RoleUser, true)
	require.NoError(t, err)

	p, err := s.Authorize(ctx, "user@example.com", model.RoleAdmin, false)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
}

func TestAuthorizeLenientProvisionsAbsentProfile(t *testing.T) {
	s := newTestService()

	p, err := s.Authorize(context.Background(), "fresh@example.com", "", false)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, model.RoleUser, p.Role)
}
