package guard

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/mail"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/store"
)

type State string

const (
	StateUnverified State = "UNVERIFIED"
	StateCodeSent   State = "CODE_SENT"
	StateVerified   State = "VERIFIED"
)

const (
	codeLength     = 6
	codeCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultSessTTL = 30 * time.Minute
)

// ErrVerificationRequired gates persistence until the session is VERIFIED.
var ErrVerificationRequired = errors.New("email verification required")

// ErrCodeMismatch keeps the session in CODE_SENT; the respondent may retry
// without limit.
var ErrCodeMismatch = errors.New("verification code does not match")

type verifySession struct {
	surveyID  string
	email     string
	code      string
	state     State
	expiresAt time.Time
}

// Sessions holds per-respondent verification state in memory only. A session
// lives for the duration of one form-filling attempt and is discarded on
// submit; nothing here survives a restart, by design.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*verifySession
	now  func() time.Time
	ttl  time.Duration
}

func NewSessions() *Sessions {
	return &Sessions{
		byID: map[string]*verifySession{},
		now:  time.Now,
		ttl:  defaultSessTTL,
	}
}

// Begin starts the UNVERIFIED → CODE_SENT transition: refuse emails that
// already submitted, generate a code, attempt delivery. On delivery failure
// no session is created, so the respondent simply re-submits the email.
func (s *Sessions) Begin(ctx context.Context, st store.Store, mailer mail.Mailer, sv model.Survey, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", apperr.Validationf("email is required")
	}

	found, err := hasResponse(ctx, st, store.Filters{
		"surveyId": sv.ID,
		"email":    email,
	})
	if err != nil {
		return "", err
	}
	if found {
		return "", errors.Wrap(apperr.ErrDuplicateSubmission, email)
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}

	heading, _ := sv.Heading()
	if err := mailer.Send(ctx, mail.VerificationCode(email, heading, code)); err != nil {
		return "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "guard.sessions.id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.byID[id.String()] = &verifySession{
		surveyID:  sv.ID,
		email:     email,
		code:      code,
		state:     StateCodeSent,
		expiresAt: s.now().Add(s.ttl),
	}
	return id.String(), nil
}

// Confirm attempts CODE_SENT → VERIFIED. Codes are normalized to uppercase
// so the comparison is case-insensitive. A mismatch leaves the session in
// CODE_SENT with unlimited retries.
func (s *Sessions) Confirm(sessionID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return errors.Wrap(apperr.ErrNotFound, "verification session")
	}
	if sess.state != StateCodeSent && sess.state != StateVerified {
		return ErrVerificationRequired
	}

	if strings.ToUpper(strings.TrimSpace(code)) != sess.code {
		return ErrCodeMismatch
	}
	sess.state = StateVerified
	return nil
}

// Resend re-delivers the existing code to the stored email. It neither
// regenerates the code nor re-checks for a prior submission.
func (s *Sessions) Resend(ctx context.Context, mailer mail.Mailer, sv model.Survey, sessionID string) error {
	s.mu.Lock()
	sess := s.getLocked(sessionID)
	var email, code string
	if sess != nil {
		email, code = sess.email, sess.code
	}
	s.mu.Unlock()

	if sess == nil {
		return errors.Wrap(apperr.ErrNotFound, "verification session")
	}

	heading, _ := sv.Heading()
	return mailer.Send(ctx, mail.VerificationCode(email, heading, code))
}

// State reports the current machine state for a session id; unknown or
// expired sessions are UNVERIFIED.
func (s *Sessions) State(sessionID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return StateUnverified
	}
	return sess.state
}

func (s *Sessions) drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sessionID)
}

func (s *Sessions) getLocked(sessionID string) *verifySession {
	sess, ok := s.byID[sessionID]
	if !ok {
		return nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.byID, sessionID)
		return nil
	}
	return sess
}

func (s *Sessions) sweepLocked() {
	now := s.now()
	for id, sess := range s.byID {
		if now.After(sess.expiresAt) {
			delete(s.byID, id)
		}
	}
}

func newCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "guard.code")
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}

// emailVerification is the strategy for surveys marked authenticated. The
// render gate is the verification flow itself; persistence requires a
// VERIFIED session, and the final record is stamped with the verified email
// and code for audit before the session is thrown away.
type emailVerification struct {
	survey    model.Survey
	store     store.Store
	sessions  *Sessions
	sessionID string
}

func (g *emailVerification) Kind() Kind {
	return KindEmailVerification
}

func (g *emailVerification) MayRender(context.Context) error {
	return nil
}

func (g *emailVerification) MayPersist(_ context.Context, rec *model.ResponseRecord) error {
	g.sessions.mu.Lock()
	defer g.sessions.mu.Unlock()

	sess := g.sessions.getLocked(g.sessionID)
	if sess == nil || sess.surveyID != g.survey.ID || sess.state != StateVerified {
		return ErrVerificationRequired
	}
	rec.Email = sess.email
	rec.VerificationCode = sess.code
	return nil
}

func (g *emailVerification) OnPersisted(_ context.Context, _ *model.ResponseRecord) *Receipt {
	g.sessions.drop(g.sessionID)
	return nil
}
