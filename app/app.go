package app

import (
	"github.com/go-chi/oauth"

	"github.com/feedpulse/feedpulse/config"
	"github.com/feedpulse/feedpulse/guard"
	"github.com/feedpulse/feedpulse/identity"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/netaddr"
	"github.com/feedpulse/feedpulse/profile"
	"github.com/feedpulse/feedpulse/store"
	"github.com/feedpulse/feedpulse/survey"
)

// App bundles the services the controllers draw on.
type App struct {
	Store    store.Store
	Bearer   *oauth.BearerServer
	Profiles *profile.Service
	Surveys  *survey.Service
	Identity *identity.Service
	Mailer   mail.Mailer
	Resolver netaddr.Resolver
	Sessions *guard.Sessions
	config.Config
}

// GuardDeps collects the collaborators the submission guard needs.
func (a App) GuardDeps() guard.Deps {
	return guard.Deps{
		Store:        a.Store,
		Resolver:     a.Resolver,
		Mailer:       a.Mailer,
		Sessions:     a.Sessions,
		MarkerSecret: []byte(a.MarkerSecret),
	}
}
