package middlewares

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"

	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/profile"
)

// Email extracts the authenticated account email from the bearer token.
func Email(r *http.Request) string {
	credential, _ := r.Context().Value(oauth.CredentialContext).(string)
	return credential
}

// IsAdmin reports whether the bearer token carries the admin role claim.
func IsAdmin(r *http.Request) bool {
	claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)
	if rolesClaim, ok := claims["roles"]; ok {
		for _, role := range strings.Split(rolesClaim, ",") {
			if role == string(model.RoleAdmin) {
				return true
			}
		}
	}
	return false
}

// Authenticated validates the bearer token.
func Authenticated(secret string) func(http.Handler) http.Handler {
	return oauth.Authorize(secret, nil)
}

// Admin validates the bearer token and requires the admin role claim.
func Admin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), admin).Handler(next)
	}
}

func admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActiveProfile re-runs the account gate on every authenticated request, so
// a profile disabled or removed mid-session loses access immediately. On
// denial the session cookies are cleared: the identity session must not
// outlive the application-level decision.
func ActiveProfile(profiles *profile.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := Email(r)
			if email == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			if _, err := profiles.Authorize(r.Context(), email, "", false); err != nil {
				ClearSessionCookies(w)
				httpx.LogAppError(w, "gate.active_profile", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClearSessionCookies expires the browser token cookies, forcing sign-out.
func ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{"access_token", "refresh_token"} {
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

// CookieAuth lets browser page loads authenticate with the token cookies,
// transparently refreshing an expired access token through the bearer
// server.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "GET" {
				h.ServeHTTP(w, r)
				return
			}

			token, err := r.Cookie("access_token")
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != 401 {
					if err := buf.Flush(w); err != nil {
						log.Errorf("cookie_auth.flush: %s", err)
					}
					return
				}
			}

			loginLocation := "/login?goto=" + url.QueryEscape(r.RequestURI)

			// token was empty or unauthorized
			refreshToken, err := r.Cookie("refresh_token")
			if err != nil {
				if !errors.Is(err, http.ErrNoCookie) {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				// refresh token was empty: redirect to login page
				w.Header().Set("location", loginLocation)
				w.WriteHeader(http.StatusTemporaryRedirect)
				return
			}

			// produce a new token pair through the bearer server
			body := url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {refreshToken.Value},
			}
			req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			req.Header.Set("content-type", "application/x-www-form-urlencoded")
			req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

			resp := httpx.NewResponseBuffer()
			bearerServer.UserCredentials(resp, req)
			if resp.Status() == 401 {
				// stale refresh token: drop it and redirect to login
				w.Header().Set("location", loginLocation)
				ClearSessionCookies(w)
				w.WriteHeader(http.StatusTemporaryRedirect)
				return
			}
			if resp.Status() != 200 {
				http.Error(w, http.StatusText(resp.Status()), resp.Status())
				return
			}

			var responseBody map[string]any
			err = json.Unmarshal(resp.Body(), &responseBody)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			accessToken, _ := responseBody["access_token"].(string)
			expiresIn, _ := responseBody["expires_in"].(float64)
			refreshValue, _ := responseBody["refresh_token"].(string)
			if accessToken == "" || refreshValue == "" {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			SetSessionCookies(w, accessToken, int(expiresIn), refreshValue)

			r.Header.Set("authorization", "Bearer "+accessToken)
			h.ServeHTTP(w, r)
		})
	}
}

// SetSessionCookies stores a fresh token pair in the browser.
func SetSessionCookies(w http.ResponseWriter, accessToken string, expiresIn int, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "access_token",
		Value:    accessToken,
		MaxAge:   expiresIn,
		SameSite: http.SameSiteNoneMode,
	})
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "refresh_token",
		Value:    refreshToken,
		MaxAge:   60 * 60 * 24 * 365,
		SameSite: http.SameSiteNoneMode,
	})
}
