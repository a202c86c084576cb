package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.Bearer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// respondent endpoints: reachable by anyone holding the survey link
	api.Get("/surveys/{id}/open", OpenSurvey(app))
	api.Post("/surveys/{id}/verification", SendVerification(app))
	api.Post("/surveys/{id}/verification/confirm", ConfirmVerification(app))
	api.Post("/surveys/{id}/verification/resend", ResendVerification(app))
	api.Post("/surveys/{id}/submissions", SubmitSurvey(app))

	// account endpoints
	api.Post("/register", Register(app))
	api.Post("/login", Login(app))
	api.Post("/login/admin", AdminLogin(app))
	api.Post("/refresh", Refresh(app))
	api.Post("/logout", Logout())
	api.Post("/password/reset", RequestPasswordReset(app))
	api.Put("/password/reset", ConfirmPasswordReset(app))

	// owner dashboard: bearer token plus the account gate on every request
	api.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticated(app.TokenSecret), middlewares.ActiveProfile(app.Profiles))

		r.Post("/password", ChangePassword(app))
		r.Put("/me/recovery-email", UpdateRecoveryEmail(app))

		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get("/surveys/{id}", GetSurvey(app))
		r.Post("/surveys/{id}/deactivate", DeactivateSurvey(app))
		r.Delete("/surveys/{id}", DeleteSurvey(app))
		r.Get("/surveys/{id}/responses", ListResponses(app))
		r.Delete("/responses/{id}", DeleteResponse(app))
		r.Get("/surveys/{id}/report", GetReport(app))
		r.Get("/surveys/{id}/report/export", ExportReport(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret), middlewares.ActiveProfile(app.Profiles))

		r.Get("/users", ListUsers(app))
		r.Post("/users", CreateUser(app))
		r.Post("/users/{email}/status", SetUserStatus(app))
		r.Delete("/users/{email}", DeleteUser(app))
		r.Get("/surveys", AdminListSurveys(app))
	})

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
