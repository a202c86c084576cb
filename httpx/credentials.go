package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/oauth"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/identity"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/profile"
	"github.com/feedpulse/feedpulse/store"
)

// AdminScope marks the admin login entry point. The verifier runs the strict
// profile gate for it, so a non-admin never receives a token there.
const AdminScope = "admin"

const refreshTokenLifetime = 8760 * time.Hour

type sessionTokenDoc struct {
	Email          string    `json:"email"`
	TokenID        string    `json:"tokenId"`
	RefreshTokenID string    `json:"refreshTokenId"`
	Expiration     time.Time `json:"expiration"`
}

// credentialsVerifier bridges go-chi/oauth to the identity service and the
// profile gate. Authorization failures here mean no token is ever issued, so
// a denied account cannot hold a live session.
type credentialsVerifier struct {
	store    store.Store
	identity *identity.Service
	profiles *profile.Service
}

func CredentialsVerifier(st store.Store, ident *identity.Service, profiles *profile.Service) oauth.CredentialsVerifier {
	return &credentialsVerifier{store: st, identity: ident, profiles: profiles}
}

func NewBearerServer(secret string, ttl time.Duration, verifier oauth.CredentialsVerifier) *oauth.BearerServer {
	return oauth.NewBearerServer(secret, ttl, verifier, nil)
}

func (cs *credentialsVerifier) ValidateUser(username, password, scope string, r *http.Request) error {
	ctx := r.Context()
	if err := cs.identity.Authenticate(ctx, username, password); err != nil {
		return err
	}

	// the profile gate runs on every login path; the admin entry point is
	// strict, the generic one re-provisions roles
	if scope == AdminScope {
		_, err := cs.profiles.Authorize(ctx, username, model.RoleAdmin, true)
		return err
	}
	_, err := cs.profiles.Authorize(ctx, username, "", false)
	return err
}

func (cs *credentialsVerifier) StoreTokenID(_ oauth.TokenType, credential, tokenID, refreshTokenID string) error {
	_, err := cs.store.Create(context.Background(), store.SessionTokens, sessionTokenDoc{
		Email:          credential,
		TokenID:        tokenID,
		RefreshTokenID: refreshTokenID,
		Expiration:     time.Now().Add(refreshTokenLifetime).UTC(),
	})
	return err
}

func (cs *credentialsVerifier) ValidateTokenID(_ oauth.TokenType, credential, tokenID, refreshTokenID string) error {
	ctx := context.Background()

	var tokens []struct {
		sessionTokenDoc
		ID string `json:"id"`
	}
	err := cs.store.Query(ctx, store.SessionTokens, store.Filters{
		"email":          credential,
		"tokenId":        tokenID,
		"refreshTokenId": refreshTokenID,
	}, &tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return errors.New("could not refresh")
	}

	// refresh tokens are single use
	for _, token := range tokens {
		_ = cs.store.Delete(ctx, store.SessionTokens, token.ID)
	}

	if tokens[0].Expiration.Before(time.Now()) {
		return errors.New("could not refresh")
	}

	// the profile gate applies to refreshed sessions too
	_, err = cs.profiles.Authorize(ctx, credential, "", false)
	return err
}

func (cs *credentialsVerifier) AddClaims(_ oauth.TokenType, credential, _, _ string, r *http.Request) (map[string]string, error) {
	p, err := cs.profiles.Get(r.Context(), credential)
	if err != nil {
		return nil, err
	}
	return map[string]string{"roles": string(p.Role)}, nil
}

func (cs *credentialsVerifier) AddProperties(oauth.TokenType, string, string, string, *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}

func (cs *credentialsVerifier) ValidateClient(string, string, string, *http.Request) error {
	return errors.New("not supported")
}
