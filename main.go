package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/config"
	"github.com/feedpulse/feedpulse/guard"
	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/identity"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/netaddr"
	"github.com/feedpulse/feedpulse/profile"
	"github.com/feedpulse/feedpulse/routes"
	"github.com/feedpulse/feedpulse/store"
	"github.com/feedpulse/feedpulse/survey"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	st, err := store.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.store.open:", err)
	}
	defer st.Close()

	mailer := mail.NewSMTP(cfg.SMTP)
	profiles := profile.NewService(st)
	ident := identity.NewService(st, mailer, cfg.ResetURL)
	verifier := httpx.CredentialsVerifier(st, ident, profiles)

	a := app.App{
		Store:    st,
		Bearer:   httpx.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, verifier),
		Profiles: profiles,
		Surveys:  survey.NewService(st),
		Identity: ident,
		Mailer:   mailer,
		Resolver: netaddr.RequestResolver{TrustForwarded: cfg.TrustForwarded},
		Sessions: guard.NewSessions(),
		Config:   cfg,
	}

	handler := routes.Wire(a)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
