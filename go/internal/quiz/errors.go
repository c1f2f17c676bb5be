// Package quiz holds what the session state machine, the admission
// controller and the client share: the rejection taxonomy.
package quiz

import "errors"

var (
	// ErrSupplyFailure is returned when the question supplier has nothing for
	// the requested category. No session is created.
	ErrSupplyFailure = errors.New("no questions available")
	// ErrInvalidSettings rejects session settings before anything is written.
	ErrInvalidSettings = errors.New("invalid session settings")

	// ErrPermissionDenied is returned when a GM-only transition is invoked by
	// a client that did not create the session.
	ErrPermissionDenied = errors.New("only the game master may do that")
	// ErrInvalidTransition is returned for transitions the current status
	// does not allow, e.g. starting twice.
	ErrInvalidTransition = errors.New("transition not allowed from current status")

	ErrNoActiveQuestion = errors.New("no active question")
	ErrAlreadyAnswered  = errors.New("already answered this question")
	// ErrStaleSubmission is an answer for a question the session has moved
	// past, or one that arrived after time ran out.
	ErrStaleSubmission = errors.New("question is no longer open")

	ErrSessionNotFound = errors.New("game not found")
	ErrNotJoinable     = errors.New("game is not accepting players")
)

// IsSilent reports whether err is a normal race outcome that must not be
// shown to the user.
func IsSilent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrStaleSubmission) ||
		errors.Is(err, ErrAlreadyAnswered) ||
		errors.Is(err, ErrNoActiveQuestion)
}
