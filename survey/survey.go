// Package survey manages the lifecycle of feedback forms and their response
// records: creation, listing, deactivation and the cascade delete that takes
// a survey's responses with it.
package survey

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/store"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// CreateInput carries everything needed to open a new survey. DisplayName and
// SessionDate are stored as separate fields; the legacy delimited title is
// never produced.
type CreateInput struct {
	Owner         string
	DisplayName   string
	SessionDate   string
	Fields        []model.FieldSpec
	Authenticated bool
	IPGuard       bool
}

func (in CreateInput) validate() error {
	if in.DisplayName == "" || in.SessionDate == "" {
		return apperr.Validationf("session name and date are required")
	}
	if len(in.Fields) == 0 {
		return apperr.Validationf("at least one field is required")
	}
	seen := make(map[string]bool, len(in.Fields))
	for _, f := range in.Fields {
		if f.Label == "" {
			return apperr.Validationf("field labels must not be empty")
		}
		if seen[f.Label] {
			return apperr.Validationf("duplicate field label %q", f.Label)
		}
		seen[f.Label] = true
	}
	return nil
}

// Create validates input before any store call and returns the new survey id.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}

	return s.store.Create(ctx, store.Surveys, model.Survey{
		CreatedBy:     in.Owner,
		DisplayName:   in.DisplayName,
		SessionDate:   in.SessionDate,
		Fields:        in.Fields,
		Active:        true,
		Authenticated: in.Authenticated,
		IPGuard:       in.IPGuard,
		CreatedAt:     s.now().UTC(),
	})
}

func (s *Service) Get(ctx context.Context, id string) (model.Survey, error) {
	var sv model.Survey
	err := s.store.Get(ctx, store.Surveys, id, &sv)
	return sv, err
}

func (s *Service) ListByOwner(ctx context.Context, email string) ([]model.Survey, error) {
	var surveys []model.Survey
	err := s.store.Query(ctx, store.Surveys, store.Filters{"createdBy": email}, &surveys)
	return surveys, err
}

func (s *Service) ListAll(ctx context.Context) ([]model.Survey, error) {
	var surveys []model.Survey
	err := s.store.Query(ctx, store.Surveys, nil, &surveys)
	return surveys, err
}

// Deactivate soft-stops the survey. Responses are untouched.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.store.Update(ctx, store.Surveys, id, store.Fields{"active": false})
}

func (s *Service) Responses(ctx context.Context, surveyID string) ([]model.ResponseRecord, error) {
	var responses []model.ResponseRecord
	err := s.store.Query(ctx, store.Responses, store.Filters{"surveyId": surveyID}, &responses)
	return responses, err
}

func (s *Service) AddResponse(ctx context.Context, rec model.ResponseRecord) (string, error) {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.now().UTC()
	}
	return s.store.Create(ctx, store.Responses, rec)
}

func (s *Service) DeleteResponse(ctx context.Context, responseID string) error {
	return s.store.Delete(ctx, store.Responses, responseID)
}

// DeleteCascade removes every response of the survey, then the survey itself.
// Response deletions are issued concurrently and awaited together; if any of
// them fails the survey record is left in place and the collected failures
// are reported as a single PartialCascade error. Responses go first so a
// crash mid-operation can only leave a survey with fewer (or zero) responses,
// never responses pointing at a missing survey.
func (s *Service) DeleteCascade(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	responses, err := s.Responses(ctx, id)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		merr *multierror.Error
		wg   sync.WaitGroup
	)
	for _, rec := range responses {
		rec := rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Delete(ctx, store.Responses, rec.ID); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, errors.Wrap(err, rec.ID))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := merr.ErrorOrNil(); err != nil {
		log.Warnf("survey.delete_cascade: %s: %s", id, err)
		return errors.Wrap(apperr.ErrPartialCascade, err.Error())
	}

	return s.store.Delete(ctx, store.Surveys, id)
}

// OwnerStats counts active and finished surveys per owner, for the admin
// dashboard.
type OwnerStats struct {
	Owner    string `json:"owner"`
	Active   int    `json:"active"`
	Finished int    `json:"finished"`
}

func StatsByOwner(surveys []model.Survey) []OwnerStats {
	byOwner := map[string]*OwnerStats{}
	order := []string{}
	for _, sv := range surveys {
		owner := sv.CreatedBy
		if owner == "" {
			owner = "unknown"
		}
		entry, ok := byOwner[owner]
		if !ok {
			entry = &OwnerStats{Owner: owner}
			byOwner[owner] = entry
			order = append(order, owner)
		}
		if sv.Active {
			entry.Active++
		} else {
			entry.Finished++
		}
	}

	sort.Strings(order)
	stats := make([]OwnerStats, 0, len(order))
	for _, owner := range order {
		stats = append(stats, *byOwner[owner])
	}
	return stats
}
