package httpx

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
	"github.com/feedpulse/feedpulse/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// LogAppError maps the application error taxonomy to HTTP statuses in one
// place. Anything it does not recognize becomes a logged 500.
func LogAppError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", err)
	case errors.Is(err, apperr.ErrNotFound):
		LogNotFound(w, code, err)
	case errors.Is(err, apperr.ErrDuplicateSubmission):
		LogStatusMsg(w, http.StatusConflict, log.DebugLevel, code, "feedback already submitted")
	case errors.Is(err, apperr.ErrSurveyClosed):
		LogStatusMsg(w, http.StatusGone, log.DebugLevel, code, "this survey has been deactivated by its owner")
	case errors.Is(err, apperr.ErrAccountPending):
		LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, code, "account is pending admin approval")
	case errors.Is(err, apperr.ErrAccountRemoved):
		LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, code, "account has been removed, contact the administrator")
	case errors.Is(err, apperr.ErrInsufficientRole):
		LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, code, "not an authorized admin account")
	case errors.Is(err, apperr.ErrDeliveryFailure):
		LogStatusMsg(w, http.StatusBadGateway, log.WarnLevel, code, "could not deliver the email, please try again")
	case errors.Is(err, apperr.ErrPartialCascade):
		// distinct from a plain failure: the survey was kept on purpose
		LogStatusMsg(w, http.StatusInternalServerError, log.ErrorLevel, code,
			"some responses could not be deleted; the survey was kept, retry the deletion")
	default:
		LogInternalError(w, code, err)
	}
}
