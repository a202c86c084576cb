package guard

import (
	"context"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/netaddr"
	"github.com/feedpulse/feedpulse/store"
)

// networkFingerprint blocks repeat submissions from the same public address.
// It over-blocks unrelated people behind one address, which is why it is no
// longer the default. When the address cannot be resolved the guard is
// disabled entirely rather than blocking legitimate respondents.
type networkFingerprint struct {
	survey  model.Survey
	store   store.Store
	resolve func() string

	addr     string
	resolved bool
}

func (g *networkFingerprint) Kind() Kind {
	return KindNetworkFingerprint
}

func (g *networkFingerprint) address() string {
	if !g.resolved {
		g.addr = g.resolve()
		g.resolved = true
	}
	return g.addr
}

func (g *networkFingerprint) check(ctx context.Context) error {
	addr := g.address()
	if addr == netaddr.Unknown {
		// fail open
		return nil
	}

	found, err := hasResponse(ctx, g.store, store.Filters{
		"surveyId": g.survey.ID,
		"ip":       addr,
	})
	if err != nil {
		return err
	}
	if found {
		return errors.Wrap(apperr.ErrDuplicateSubmission, addr)
	}
	return nil
}

func (g *networkFingerprint) MayRender(ctx context.Context) error {
	return g.check(ctx)
}

// MayPersist re-checks at submission time. The window between render and
// submit stays open; the re-check only narrows it.
func (g *networkFingerprint) MayPersist(ctx context.Context, rec *model.ResponseRecord) error {
	if err := g.check(ctx); err != nil {
		return err
	}
	rec.IP = g.address()
	return nil
}

func (g *networkFingerprint) OnPersisted(context.Context, *model.ResponseRecord) *Receipt {
	return nil
}
