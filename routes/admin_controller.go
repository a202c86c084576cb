package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/routes/middlewares"
	"github.com/feedpulse/feedpulse/survey"
)

func ListUsers(app app.App) http.HandlerFunc {
	type userView struct {
		model.AccountProfile
		Status string `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := app.Profiles.List(r.Context())
		if err != nil {
			httpx.LogAppError(w, "admin.users.list", err)
			return
		}

		users := make([]userView, len(profiles))
		for i, p := range profiles {
			users[i] = userView{AccountProfile: p, Status: p.StatusLabel()}
		}

		render.JSON(w, r, map[string]any{
			"users": users,
		})
	}
}

// CreateUser provisions a ready-to-use account: credentials plus an active
// profile with the requested role, no approval round-trip.
func CreateUser(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string     `json:"email"`
			Password string     `json:"password"`
			Role     model.Role `json:"role"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Identity.CreateAccountDetached(r.Context(), body.Email, body.Password)
		if err != nil {
			httpx.LogAppError(w, "admin.users.create.credentials", err)
			return
		}

		email := strings.TrimSpace(strings.ToLower(body.Email))
		p, err := app.Profiles.Ensure(r.Context(), email, body.Role, true)
		if err != nil {
			httpx.LogAppError(w, "admin.users.create.profile", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, p)
	}
}

// SetUserStatus approves, disables or re-enables an account. The role is left
// untouched on purpose: approving an admin must not downgrade it to a user.
func SetUserStatus(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if email == middlewares.Email(r) {
			// checked before touching the store at all
			httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "admin.users.status.self",
				"you cannot change the status of your own account")
			return
		}

		var body struct {
			Active bool `json:"active"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Profiles.SetStatus(r.Context(), email, body.Active)
		if err != nil {
			httpx.LogAppError(w, "admin.users.status", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteUser(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if email == middlewares.Email(r) {
			httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "admin.users.delete.self",
				"you cannot remove your own account")
			return
		}

		err := app.Profiles.SoftDelete(r.Context(), email)
		if err != nil {
			httpx.LogAppError(w, "admin.users.delete", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminListSurveys is the cross-owner overview: every survey in the system
// plus active/finished counts per owner.
func AdminListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.Surveys.ListAll(r.Context())
		if err != nil {
			httpx.LogAppError(w, "admin.surveys.list", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
			"byOwner": survey.StatsByOwner(surveys),
		})
	}
}
