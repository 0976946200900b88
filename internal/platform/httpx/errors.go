// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error for HTTP mapping. Domain packages keep their
// own sentinel errors; handlers translate them into a Kind before responding.
type Kind int

const (
	// KindInternal is the fallback for persistence and unknown failures.
	KindInternal Kind = iota
	// KindNotFound maps to 404.
	KindNotFound
	// KindValidation maps to 400, malformed or out-of-range input.
	KindValidation
	// KindInvalidState maps to 409, operation not permitted in current status.
	KindInvalidState
	// KindReferential maps to 422, reference to a missing or inactive record.
	KindReferential
	// KindDuplicate maps to 409 for unique constraint conflicts.
	KindDuplicate
)

// Classifier resolves a domain error into a Kind. Returning false defers to
// the next classifier, or to the internal-error fallback.
type Classifier func(error) (Kind, bool)

// RespondError maps a domain error through the given classifiers and writes an
// RFC7807 problem response. Internal errors never leak their message.
func RespondError(w http.ResponseWriter, err error, classifiers ...Classifier) {
	kind := KindInternal
	for _, classify := range classifiers {
		if k, ok := classify(err); ok {
			kind = k
			break
		}
	}
	switch kind {
	case KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case KindInvalidState:
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case KindReferential:
		Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	case KindDuplicate:
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Is builds a Classifier matching a list of sentinels onto one Kind.
func Is(kind Kind, sentinels ...error) Classifier {
	return func(err error) (Kind, bool) {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return kind, true
			}
		}
		return KindInternal, false
	}
}
