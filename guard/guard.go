// Package guard decides whether a respondent may see a survey form and
// whether a collected answer set may be persisted. Exactly one strategy is
// active per survey, selected from the survey's own flags:
//
//   - email verification when the survey is marked authenticated,
//   - network fingerprint when it carries the legacy ip-guard flag,
//   - the local marker otherwise.
//
// All strategies are advisory. Each is honest about its trust model: the
// local marker is discarded by clearing client state, the fingerprint
// over-blocks shared networks and fails open when the address is unknown,
// and the verification codes allow unlimited retries.
package guard

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/netaddr"
	"github.com/feedpulse/feedpulse/store"
)

type Kind string

const (
	KindLocalMarker        Kind = "local-marker"
	KindNetworkFingerprint Kind = "network-fingerprint"
	KindEmailVerification  Kind = "email-verification"
)

// Strategy is the capability interface every anti-duplicate policy exposes.
// MayPersist may stamp the record (ip, email, verification code) in addition
// to checking it; OnPersisted runs after a successful write and may hand a
// receipt back to the client.
type Strategy interface {
	Kind() Kind
	MayRender(ctx context.Context) error
	MayPersist(ctx context.Context, rec *model.ResponseRecord) error
	OnPersisted(ctx context.Context, rec *model.ResponseRecord) *Receipt
}

// Receipt is what a strategy hands back to the client after persisting.
// Only the local-marker strategy uses it.
type Receipt struct {
	Marker string `json:"marker,omitempty"`
}

// Deps are the collaborators strategies draw on.
type Deps struct {
	Store        store.Store
	Resolver     netaddr.Resolver
	Mailer       mail.Mailer
	Sessions     *Sessions
	MarkerSecret []byte
}

// Request carries the per-respondent inputs a strategy may need.
type Request struct {
	HTTP      *http.Request
	Marker    string
	SessionID string
}

// CheckOpen refuses any interaction with a deactivated survey. It runs
// before strategy-specific logic, for every strategy.
func CheckOpen(sv model.Survey) error {
	if !sv.Active {
		return errors.Wrap(apperr.ErrSurveyClosed, sv.ID)
	}
	return nil
}

// Select picks the single strategy for this survey and wraps it behind the
// closed-survey gate. The flags are mutually exclusive by construction: the
// authenticated flag wins, then the ip-guard flag, then the default.
func Select(sv model.Survey, deps Deps, req Request) Strategy {
	var inner Strategy
	switch {
	case sv.Authenticated:
		inner = &emailVerification{
			survey:    sv,
			store:     deps.Store,
			sessions:  deps.Sessions,
			sessionID: req.SessionID,
		}
	case sv.IPGuard:
		inner = &networkFingerprint{
			survey: sv,
			store:  deps.Store,
			resolve: func() string {
				if req.HTTP == nil || deps.Resolver == nil {
					return netaddr.Unknown
				}
				return deps.Resolver.Resolve(req.HTTP)
			},
		}
	default:
		inner = &localMarker{
			surveyID:  sv.ID,
			secret:    deps.MarkerSecret,
			presented: req.Marker,
		}
	}
	return &closedGate{survey: sv, inner: inner}
}

// closedGate short-circuits every check when the survey is deactivated.
type closedGate struct {
	survey model.Survey
	inner  Strategy
}

func (g *closedGate) Kind() Kind {
	return g.inner.Kind()
}

func (g *closedGate) MayRender(ctx context.Context) error {
	if err := CheckOpen(g.survey); err != nil {
		return err
	}
	return g.inner.MayRender(ctx)
}

func (g *closedGate) MayPersist(ctx context.Context, rec *model.ResponseRecord) error {
	if err := CheckOpen(g.survey); err != nil {
		return err
	}
	return g.inner.MayPersist(ctx, rec)
}

func (g *closedGate) OnPersisted(ctx context.Context, rec *model.ResponseRecord) *Receipt {
	return g.inner.OnPersisted(ctx, rec)
}

func hasResponse(ctx context.Context, st store.Store, filters store.Filters) (bool, error) {
	var responses []model.ResponseRecord
	if err := st.Query(ctx, store.Responses, filters, &responses); err != nil {
		return false, err
	}
	return len(responses) > 0, nil
}
