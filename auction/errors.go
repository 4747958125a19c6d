package auction

import (
	"errors"
	"fmt"
)

// RejectCode identifies the exact validation rule a bid failed. Codes are
// part of the API contract: clients distinguish BID_TOO_LOW from
// AUCTION_NOT_ACTIVE, so nothing between the validator and the HTTP
// response may collapse them.
type RejectCode string

const (
	CodeAuctionNotActive RejectCode = "AUCTION_NOT_ACTIVE"
	CodeItemNotActive    RejectCode = "ITEM_NOT_ACTIVE"
	CodeInvalidAmount    RejectCode = "INVALID_AMOUNT"
	CodeBidTooLow        RejectCode = "BID_TOO_LOW"
	CodeSelfOutbid       RejectCode = "SELF_OUTBID"
)

// Fields a RejectError can be attached to in the place-bid request body.
const (
	FieldItem   = "auction_item_id"
	FieldAmount = "amount"
)

// RejectError is a client-correctable bid rejection. Minimum carries the
// lowest acceptable amount when the rejection is price-related.
type RejectError struct {
	Code    RejectCode
	Field   string
	Message string
	Minimum int64
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets callers match with errors.Is against a bare code.
func (e *RejectError) Is(target error) bool {
	var other *RejectError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func reject(code RejectCode, field, message string, minimum int64) *RejectError {
	return &RejectError{Code: code, Field: field, Message: message, Minimum: minimum}
}

var (
	// ErrItemNotFound maps to a 404; never retried.
	ErrItemNotFound = errors.New("auction item not found")
	// ErrEventNotFound is an internal-consistency failure: an item always
	// has a parent event.
	ErrEventNotFound = errors.New("auction event not found")
	// ErrConflict is the transient failure surfaced after the bounded
	// retry loop loses every round to concurrent bidders.
	ErrConflict = errors.New("bid conflicts with a concurrent update, try again")
	// ErrInvalidTransition is returned by lifecycle operations asked to
	// move an event out of a terminal state.
	ErrInvalidTransition = errors.New("invalid auction state transition")
)
