package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/config"
	"github.com/feedpulse/feedpulse/guard"
	"github.com/feedpulse/feedpulse/identity"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/netaddr"
	"github.com/feedpulse/feedpulse/profile"
	"github.com/feedpulse/feedpulse/store"
	"github.com/feedpulse/feedpulse/survey"
)

type dropMailer struct{}

func (dropMailer) Send(context.Context, mail.Message) error { return nil }

func testApp() app.App {
	st := store.NewMemory()
	return app.App{
		Store:    st,
		Profiles: profile.NewService(st),
		Surveys:  survey.NewService(st),
		Identity: identity.NewService(st, dropMailer{}, "http://localhost/reset.html"),
		Mailer:   dropMailer{},
		Resolver: netaddr.RequestResolver{},
		Sessions: guard.NewSessions(),
		Config: config.Config{
			TokenSecret:  "test-secret",
			MarkerSecret: "marker-secret",
		},
	}
}

func respondentRouter(a app.App) http.Handler {
	r := chi.NewRouter()
	r.Get("/surveys/{id}/open", OpenSurvey(a))
	r.Post("/surveys/{id}/submissions", SubmitSurvey(a))
	return r
}

func createSurvey(t *testing.T, a app.App, in survey.CreateInput) string {
	t.Helper()
	if in.Owner == "" {
		in.Owner = "owner@example.com"
	}
	if in.DisplayName == "" {
		in.DisplayName = "Lecture 3"
		in.SessionDate = "2024-05-01"
	}
	if in.Fields == nil {
		in.Fields = []model.FieldSpec{{Label: "Clarity", Type: model.FieldTypeRating}}
	}
	id, err := a.Surveys.Create(context.Background(), in)
	require.NoError(t, err)
	return id
}

func TestRespondentMarkerFlow(t *testing.T) {
	a := testApp()
	router := respondentRouter(a)
	id := createSurvey(t, a, survey.CreateInput{})

	// opening the form
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/surveys/"+id+"/open", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var opened struct {
		DisplayName string `json:"displayName"`
		Guard       string `json:"guard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, "Lecture 3", opened.DisplayName)
	assert.Equal(t, string(guard.KindLocalMarker), opened.Guard)

	// first submission succeeds and hands back a marker
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{"Clarity":"5"}}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	var submitted struct {
		ID     string `json:"id"`
		Marker string `json:"marker"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Marker)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, guard.MarkerCookieName(id), cookies[0].Name)
	assert.Equal(t, submitted.Marker, cookies[0].Value)

	// presenting the marker is refused on open and on submit
	req := httptest.NewRequest("GET", "/surveys/"+id+"/open", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req = httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{"Clarity":"1"}}`))
	req.Header.Set(MarkerHeader, submitted.Marker)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// without the marker the same client may submit again
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{"Clarity":"2"}}`)))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitRejectsEmptyAnswers(t *testing.T) {
	a := testApp()
	router := respondentRouter(a)
	id := createSurvey(t, a, survey.CreateInput{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeactivatedSurveyIsGone(t *testing.T) {
	a := testApp()
	router := respondentRouter(a)
	id := createSurvey(t, a, survey.CreateInput{})
	require.NoError(t, a.Surveys.Deactivate(context.Background(), id))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/surveys/"+id+"/open", nil))
	assert.Equal(t, http.StatusGone, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{"Clarity":"5"}}`)))
	assert.Equal(t, http.StatusGone, w.Code)
}

// asUser attaches the bearer-token context values the middlewares would set.
func asUser(r *http.Request, email string, role model.Role) *http.Request {
	ctx := context.WithValue(r.Context(), oauth.CredentialContext, email)
	ctx = context.WithValue(ctx, oauth.ClaimsContext, map[string]string{"roles": string(role)})
	return r.WithContext(ctx)
}

func adminRouter(a app.App) http.Handler {
	r := chi.NewRouter()
	r.Post("/users/{email}/status", SetUserStatus(a))
	r.Delete("/users/{email}", DeleteUser(a))
	return r
}

func TestAdminCannotChangeOwnStatus(t *testing.T) {
	a := testApp()
	router := adminRouter(a)
	ctx := context.Background()

	_, err := a.Profiles.Ensure(ctx, "admin@example.com", model.RoleAdmin, true)
	require.NoError(t, err)

	req := asUser(httptest.NewRequest("POST", "/users/admin@example.com/status",
		strings.NewReader(`{"active":false}`)), "admin@example.com", model.RoleAdmin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// the profile is untouched
	p, err := a.Profiles.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, p.Active)
}

func TestAdminCannotDeleteOwnAccount(t *testing.T) {
	a := testApp()
	router := adminRouter(a)
	ctx := context.Background()

	_, err := a.Profiles.Ensure(ctx, "admin@example.com", model.RoleAdmin, true)
	require.NoError(t, err)

	req := asUser(httptest.NewRequest("DELETE", "/users/admin@example.com", nil),
		"admin@example.com", model.RoleAdmin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	p, err := a.Profiles.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.False(t, p.Deleted)
}

func TestApproveKeepsAdminRole(t *testing.T) {
	a := testApp()
	router := adminRouter(a)
	ctx := context.Background()

	// a pending admin account waiting for approval
	_, err := a.Profiles.Ensure(ctx, "second@example.com", model.RoleAdmin, false)
	require.NoError(t, err)

	req := asUser(httptest.NewRequest("POST", "/users/second@example.com/status",
		strings.NewReader(`{"active":true}`)), "admin@example.com", model.RoleAdmin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	p, err := a.Profiles.Get(ctx, "second@example.com")
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, model.RoleAdmin, p.Role)
}

func TestForeignSurveyLooksAbsent(t *testing.T) {
	a := testApp()
	r := chi.NewRouter()
	r.Get("/surveys/{id}", GetSurvey(a))
	id := createSurvey(t, a, survey.CreateInput{Owner: "owner@example.com"})

	req := asUser(httptest.NewRequest("GET", "/surveys/"+id, nil), "other@example.com", model.RoleUser)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// admins see every survey
	req = asUser(httptest.NewRequest("GET", "/surveys/"+id, nil), "boss@example.com", model.RoleAdmin)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerificationFlowOverHTTP(t *testing.T) {
	a := testApp()
	r := chi.NewRouter()
	r.Get("/surveys/{id}/open", OpenSurvey(a))
	r.Post("/surveys/{id}/verification", SendVerification(a))
	r.Post("/surveys/{id}/submissions", SubmitSurvey(a))

	id := createSurvey(t, a, survey.CreateInput{
		Owner:         "owner@example.com",
		DisplayName:   "Lecture 4",
		SessionDate:   "2024-05-08",
		Fields:        []model.FieldSpec{{Label: "Clarity", Type: model.FieldTypeRating}},
		Authenticated: true,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/surveys/"+id+"/open", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var opened struct {
		Guard string `json:"guard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, string(guard.KindEmailVerification), opened.Guard)

	// a session is opened for the respondent
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/surveys/"+id+"/verification",
		strings.NewReader(`{"email":"r@example.com"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var begun struct {
		SessionID string `json:"sessionId"`
		State     string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &begun))
	assert.NotEmpty(t, begun.SessionID)
	assert.Equal(t, string(guard.StateCodeSent), begun.State)

	// submitting without confirming the code is refused
	req := httptest.NewRequest("POST", "/surveys/"+id+"/submissions",
		strings.NewReader(`{"answers":{"Clarity":"5"}}`))
	req.Header.Set(SessionHeader, begun.SessionID)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
