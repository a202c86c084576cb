package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/identity"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/routes/middlewares"
)

func Register(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Identity.Register(r.Context(), body.Email, body.Password)
		if err != nil {
			httpx.LogAppError(w, "register.credentials", err)
			return
		}

		// the profile starts inactive: an admin has to approve the account
		// before it can sign in
		email := strings.TrimSpace(strings.ToLower(body.Email))
		_, err = app.Profiles.Ensure(r.Context(), email, model.RoleUser, false)
		if err != nil {
			httpx.LogAppError(w, "register.profile", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"email":  email,
			"status": "pending approval",
		})
	}
}

func Login(app app.App) http.HandlerFunc {
	return login(app, "")
}

// AdminLogin is the strict entry point: an account whose profile is not an
// admin is rejected, never upgraded.
func AdminLogin(app app.App) http.HandlerFunc {
	return login(app, httpx.AdminScope)
}

func login(app app.App, scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}
		user = strings.TrimSpace(strings.ToLower(user))

		// run credentials and gate here first, so the client sees the real
		// denial reason instead of the bearer server's generic unauthorized
		err := app.Identity.Authenticate(r.Context(), user, pass)
		if err != nil {
			if errors.Is(err, identity.ErrBadCredentials) {
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.credentials")
			} else {
				httpx.LogAppError(w, "login.credentials", err)
			}
			return
		}
		if scope == httpx.AdminScope {
			_, err = app.Profiles.Authorize(r.Context(), user, model.RoleAdmin, true)
		} else {
			_, err = app.Profiles.Authorize(r.Context(), user, "", false)
		}
		if err != nil {
			httpx.LogAppError(w, "login.gate", err)
			return
		}

		body := url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
			"scope":      {scope},
		}
		r.Body = io.NopCloser(strings.NewReader(body.Encode()))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		resp := httpx.NewResponseBuffer()
		app.Bearer.UserCredentials(resp, r)
		if resp.Status() == http.StatusOK {
			setCookiesFromTokenBody(w, resp.Body())
		}
		if err := resp.Flush(w); err != nil {
			log.Errorf("login.flush: %s", err)
		}
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("authorization")
		match := regexp.MustCompile(`(?i)^refresh\s+(.*)`).FindStringSubmatch(auth)
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}
		token := match[1]

		body := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {token},
		}

		req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
		if err != nil {
			httpx.LogStatus(w, http.StatusInternalServerError, log.DebugLevel, "refresh.new_request")
			return
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		resp := httpx.NewResponseBuffer()
		app.Bearer.UserCredentials(resp, req)
		if resp.Status() == http.StatusOK {
			setCookiesFromTokenBody(w, resp.Body())
		}
		if err := resp.Flush(w); err != nil {
			log.Errorf("refresh.flush: %s", err)
		}
	}
}

func Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middlewares.ClearSessionCookies(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func ChangePassword(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Current string `json:"current"`
			Next    string `json:"next"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Identity.ChangePassword(r.Context(), middlewares.Email(r), body.Current, body.Next)
		if errors.Is(err, identity.ErrBadCredentials) {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "password.change.verify")
			return
		}
		if err != nil {
			httpx.LogAppError(w, "password.change", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func RequestPasswordReset(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Identity.SendPasswordReset(r.Context(), body.Email)
		if errors.Is(err, apperr.ErrNotFound) {
			// do not reveal whether the account exists
			log.Debugf("password.reset.request: unknown account")
		} else if err != nil {
			httpx.LogAppError(w, "password.reset.request", err)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func ConfirmPasswordReset(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Identity.ResetPassword(r.Context(), body.Token, body.Password)
		if err != nil {
			httpx.LogAppError(w, "password.reset.confirm", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateRecoveryEmail(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RecoveryEmail string `json:"recoveryEmail"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		p, err := app.Profiles.UpdateRecoveryEmail(r.Context(), middlewares.Email(r), body.RecoveryEmail)
		if err != nil {
			httpx.LogAppError(w, "profile.recovery_email", err)
			return
		}

		render.JSON(w, r, p)
	}
}

func setCookiesFromTokenBody(w http.ResponseWriter, body []byte) {
	var token struct {
		AccessToken  string  `json:"access_token"`
		ExpiresIn    float64 `json:"expires_in"`
		RefreshToken string  `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		log.Errorf("login.parse_token: %s", err)
		return
	}
	middlewares.SetSessionCookies(w, token.AccessToken, int(token.ExpiresIn), token.RefreshToken)
}
