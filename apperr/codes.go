// Package apperr provides coded domain errors for the cultivation core.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Malformed request body or parameters
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Lookup errors
	CodeNotFound       Code = "NOT_FOUND"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"
	CodeUnknownItem    Code = "UNKNOWN_ITEM"

	// Inventory / shop errors
	CodeCapacityExceeded     Code = "CAPACITY_EXCEEDED"
	CodeInsufficientQuantity Code = "INSUFFICIENT_QUANTITY"
	CodeOutOfStock           Code = "OUT_OF_STOCK"
	CodeLevelRequirement     Code = "LEVEL_REQUIREMENT"

	// Bank / loan errors
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeCapExceeded       Code = "CAP_EXCEEDED"
	CodeActiveLoanExists  Code = "ACTIVE_LOAN_EXISTS"
	CodeAmountOutOfRange  Code = "AMOUNT_OUT_OF_RANGE"
	CodeNoActiveLoan      Code = "NO_ACTIVE_LOAN"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"

	// Progression errors
	CodeMaxLevel               Code = "MAX_LEVEL"
	CodeInsufficientExperience Code = "INSUFFICIENT_EXPERIENCE"
	CodeWrongConsumable        Code = "WRONG_CONSUMABLE"
	CodeInvalidArchetype       Code = "INVALID_ARCHETYPE"
	CodePlayerExists           Code = "PLAYER_EXISTS"

	// Action gate errors
	CodeBusy       Code = "BUSY"
	CodeNotBusy    Code = "NOT_BUSY"
	CodeTerminated Code = "TERMINATED"

	// Infrastructure
	CodeConflict    Code = "CONFLICT"
	CodeCorruptData Code = "CORRUPT_DATA"
)

// Kind groups codes by how callers are expected to react.
type Kind int

const (
	// KindValidation failures are safe to retry after correcting input.
	KindValidation Kind = iota
	// KindConflict means the whole logical unit was rolled back; retry it.
	KindConflict
	// KindFatal is a corrupt sub-structure that was substituted with a default.
	KindFatal
	// KindTermination is an irreversible cascading outcome.
	KindTermination
	KindUnknown
)

// Kind maps a code to its taxonomy bucket.
func (c Code) Kind() Kind {
	switch c {
	case CodeConflict:
		return KindConflict
	case CodeCorruptData:
		return KindFatal
	case CodeTerminated:
		return KindTermination
	case CodeUnknown, "":
		return KindUnknown
	default:
		return KindValidation
	}
}

// Retryable reports whether retrying the unchanged request can succeed.
func (c Code) Retryable() bool {
	return c.Kind() == KindConflict
}

// HTTPStatus maps a code to the status the API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest, CodeInvalidAmount, CodeAmountOutOfRange, CodeInvalidArchetype:
		return http.StatusBadRequest
	case CodeNotFound, CodePlayerNotFound, CodeUnknownItem:
		return http.StatusNotFound
	case CodeConflict, CodePlayerExists, CodeActiveLoanExists, CodeBusy, CodeNotBusy, CodeOutOfStock:
		return http.StatusConflict
	case CodeTerminated:
		return http.StatusGone
	case CodeCorruptData, CodeUnknown, "":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
