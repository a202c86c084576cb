package guard

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/model"
)

// localMarker is the default strategy: a per-(client, survey) marker token
// handed out on submission and presented back on later visits. The server
// only verifies markers it signed itself; a client that discards the token
// can submit again. That weakness is the point — it optimizes for the common
// case of one honest respondent without over-blocking shared networks.
type localMarker struct {
	surveyID  string
	secret    []byte
	presented string
}

func (g *localMarker) Kind() Kind {
	return KindLocalMarker
}

func (g *localMarker) MayRender(context.Context) error {
	return g.check()
}

func (g *localMarker) MayPersist(_ context.Context, _ *model.ResponseRecord) error {
	// double-check right before persisting, same as at render time
	return g.check()
}

func (g *localMarker) OnPersisted(_ context.Context, _ *model.ResponseRecord) *Receipt {
	return &Receipt{Marker: SignMarker(g.secret, g.surveyID)}
}

func (g *localMarker) check() error {
	if g.presented == "" {
		return nil
	}
	if hmac.Equal([]byte(g.presented), []byte(SignMarker(g.secret, g.surveyID))) {
		return errors.Wrap(apperr.ErrDuplicateSubmission, g.surveyID)
	}
	// a marker for another survey, or a forged one: ignore it
	return nil
}

// SignMarker derives the submission marker for a survey. Deterministic, so
// the same client presenting the same token keeps being recognized.
func SignMarker(secret []byte, surveyID string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte("submitted:" + surveyID))
	return strings.TrimRight(base64.URLEncoding.EncodeToString(h.Sum(nil)), "=")
}

// MarkerCookieName is the cookie the marker travels in, scoped per survey.
func MarkerCookieName(surveyID string) string {
	return "survey_submitted_" + surveyID
}
