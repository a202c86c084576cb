package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/guard"
	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
)

// SessionHeader carries the verification session id on authenticated surveys.
const SessionHeader = "X-Verification-Session"

// MarkerHeader lets non-browser clients present a submission marker; the
// per-survey cookie is the default channel.
const MarkerHeader = "X-Submission-Marker"

// OpenSurvey renders the form definition to a respondent, after the active
// guard strategy agrees the form may be shown at all.
func OpenSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := app.Surveys.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogAppError(w, "open_survey.get", err)
			return
		}

		strategy := guard.Select(sv, app.GuardDeps(), guardRequest(r, sv))
		if err := strategy.MayRender(r.Context()); err != nil {
			httpx.LogAppError(w, "open_survey.guard", err)
			return
		}

		name, date := sv.Heading()
		render.JSON(w, r, map[string]any{
			"id":          sv.ID,
			"displayName": name,
			"sessionDate": date,
			"fields":      sv.Fields,
			"guard":       strategy.Kind(),
		})
	}
}

// SendVerification starts the email verification flow on an authenticated
// survey: it refuses addresses that already submitted, then mails a code and
// opens a session.
func SendVerification(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := app.Surveys.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogAppError(w, "verification.get_survey", err)
			return
		}
		if err := guard.CheckOpen(sv); err != nil {
			httpx.LogAppError(w, "verification.closed", err)
			return
		}
		if !sv.Authenticated {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "verification.not_authenticated",
				"this survey does not use email verification")
			return
		}

		var body struct {
			Email string `json:"email"`
		}
		err = render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		sessionID, err := app.Sessions.Begin(r.Context(), app.Store, app.Mailer, sv, body.Email)
		if err != nil {
			httpx.LogAppError(w, "verification.begin", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"sessionId": sessionID,
			"state":     app.Sessions.State(sessionID),
		})
	}
}

// ConfirmVerification checks the code the respondent typed. A mismatch is a
// plain 400 and the session stays usable for another attempt.
func ConfirmVerification(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"code"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		sessionID := r.Header.Get(SessionHeader)
		err = app.Sessions.Confirm(sessionID, body.Code)
		if errors.Is(err, guard.ErrCodeMismatch) {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "verification.confirm",
				"the verification code does not match")
			return
		}
		if err != nil {
			httpx.LogAppError(w, "verification.confirm", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"state": app.Sessions.State(sessionID),
		})
	}
}

// ResendVerification re-delivers the code already attached to the session.
func ResendVerification(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := app.Surveys.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogAppError(w, "verification.resend.get_survey", err)
			return
		}
		if err := guard.CheckOpen(sv); err != nil {
			httpx.LogAppError(w, "verification.resend.closed", err)
			return
		}

		sessionID := r.Header.Get(SessionHeader)
		err = app.Sessions.Resend(r.Context(), app.Mailer, sv, sessionID)
		if err != nil {
			httpx.LogAppError(w, "verification.resend", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SubmitSurvey persists an answer set, guarded by the survey's strategy. On
// marker-guarded surveys the response includes the signed marker and sets it
// as a cookie for later visits.
func SubmitSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := app.Surveys.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogAppError(w, "submit.get_survey", err)
			return
		}

		var body struct {
			Answers map[string]string `json:"answers"`
		}
		err = render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if len(body.Answers) == 0 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit.empty",
				"at least one answer is required")
			return
		}

		strategy := guard.Select(sv, app.GuardDeps(), guardRequest(r, sv))

		rec := model.ResponseRecord{
			SurveyID:     sv.ID,
			ResponseData: body.Answers,
		}
		if err := strategy.MayPersist(r.Context(), &rec); err != nil {
			if errors.Is(err, guard.ErrVerificationRequired) {
				httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "submit.guard",
					"email verification is required before submitting")
				return
			}
			httpx.LogAppError(w, "submit.guard", err)
			return
		}

		id, err := app.Surveys.AddResponse(r.Context(), rec)
		if err != nil {
			httpx.LogAppError(w, "submit.persist", err)
			return
		}
		rec.ID = id

		response := map[string]any{
			"id": id,
		}
		if receipt := strategy.OnPersisted(r.Context(), &rec); receipt != nil && receipt.Marker != "" {
			http.SetCookie(w, &http.Cookie{
				Path:     "/",
				Name:     guard.MarkerCookieName(sv.ID),
				Value:    receipt.Marker,
				MaxAge:   60 * 60 * 24 * 365,
				SameSite: http.SameSiteLaxMode,
			})
			response["marker"] = receipt.Marker
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, response)
	}
}

func guardRequest(r *http.Request, sv model.Survey) guard.Request {
	req := guard.Request{
		HTTP:      r,
		SessionID: r.Header.Get(SessionHeader),
	}
	if c, err := r.Cookie(guard.MarkerCookieName(sv.ID)); err == nil {
		req.Marker = c.Value
	}
	if m := r.Header.Get(MarkerHeader); m != "" {
		req.Marker = m
	}
	return req
}
