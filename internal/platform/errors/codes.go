// Package errors provides structured error handling for the scoring service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Conflict errors (recoverable by resync and retry)
	CodeVersionConflict     Code = "VERSION_CONFLICT"
	CodeClientSeqOutOfOrder Code = "CLIENT_SEQ_OUT_OF_ORDER"

	// Validation errors
	CodeMatchNotLive          Code = "MATCH_NOT_LIVE"
	CodeMatchLocked           Code = "MATCH_LOCKED"
	CodeMatchCompleted        Code = "MATCH_COMPLETED"
	CodePendingActionRequired Code = "PENDING_ACTION_REQUIRED"
	CodePendingActionMismatch Code = "PENDING_ACTION_MISMATCH"
	CodeInningsAlreadyStarted Code = "INNINGS_ALREADY_STARTED"
	CodeInningsNotStarted     Code = "INNINGS_NOT_STARTED"
	CodePlayerNotInRoster     Code = "PLAYER_NOT_IN_ROSTER"
	CodePlayerAlreadyOnField  Code = "PLAYER_ALREADY_ON_FIELD"
	CodePlayerDismissed       Code = "PLAYER_DISMISSED"
	CodeBowlerConsecutiveOver Code = "BOWLER_CONSECUTIVE_OVER"
	CodeInvalidRuns           Code = "INVALID_RUNS"
	CodeInvalidExtraKind      Code = "INVALID_EXTRA_KIND"
	CodeInvalidDismissalKind  Code = "INVALID_DISMISSAL_KIND"
	CodeWicketOnFreeHit       Code = "WICKET_ON_FREE_HIT"
	CodeEventNotUndoable      Code = "EVENT_NOT_UNDOABLE"
	CodeEventNotEditable      Code = "EVENT_NOT_EDITABLE"
	CodeEventAlreadyVoided    Code = "EVENT_ALREADY_VOIDED"
	CodeTargetEventMissing    Code = "TARGET_EVENT_MISSING"
	CodeIdempotencyKeyMissing Code = "IDEMPOTENCY_KEY_MISSING"
	CodeInvalidOversConfig    Code = "INVALID_OVERS_CONFIG"
	CodeInvalidRequest        Code = "INVALID_REQUEST"

	// Permission errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnlockAdminOnly  Code = "UNLOCK_ADMIN_ONLY"

	// Storage errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeVersionRegression Code = "VERSION_REGRESSION"

	// Fatal/data-integrity errors
	CodeLogCorrupt       Code = "LOG_CORRUPT"
	CodeSeqRetryExceeded Code = "SEQ_RETRY_EXCEEDED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Conflict - caller resyncs and retries
	case CodeVersionConflict,
		CodeClientSeqOutOfOrder,
		CodeVersionRegression:
		return http.StatusConflict

	// Unprocessable - state does not allow the operation
	case CodeMatchNotLive,
		CodeMatchLocked,
		CodeMatchCompleted,
		CodePendingActionRequired,
		CodePendingActionMismatch,
		CodeInningsAlreadyStarted,
		CodeInningsNotStarted,
		CodePlayerAlreadyOnField,
		CodePlayerDismissed,
		CodeBowlerConsecutiveOver,
		CodeWicketOnFreeHit,
		CodeEventNotUndoable,
		CodeEventNotEditable,
		CodeEventAlreadyVoided:
		return http.StatusUnprocessableEntity

	// Bad request - malformed or ineligible input
	case CodePlayerNotInRoster,
		CodeInvalidRuns,
		CodeInvalidExtraKind,
		CodeInvalidDismissalKind,
		CodeTargetEventMissing,
		CodeIdempotencyKeyMissing,
		CodeInvalidOversConfig,
		CodeInvalidRequest:
		return http.StatusBadRequest

	// Forbidden - role insufficient
	case CodePermissionDenied,
		CodeUnlockAdminOnly:
		return http.StatusForbidden

	// NotFound - resource does not exist
	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// IsConflict reports whether the code belongs to the conflict class, which a
// caller recovers from by resyncing and retrying.
func (c Code) IsConflict() bool {
	return c == CodeVersionConflict || c == CodeClientSeqOutOfOrder || c == CodeVersionRegression
}

// IsFatal reports whether the code indicates a corrupt or unreachable log.
func (c Code) IsFatal() bool {
	return c == CodeLogCorrupt || c == CodeSeqRetryExceeded
}
