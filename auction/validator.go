package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ma2ta/models"
)

// BidPolicy is the configured bidding rules. It is passed in explicitly
// rather than read from ambient settings so tests and callers always see
// the policy they constructed.
type BidPolicy struct {
	// IncrementPercent is the minimum raise over the current bid, as a
	// whole percentage. 5 means the next bid must be at least 105% of the
	// current one.
	IncrementPercent int64
	// SnipeWindow is the trailing stretch of the event in which an
	// accepted bid triggers an extension.
	SnipeWindow time.Duration
	// SnipeExtension is how far EndDatetime moves on each extension.
	SnipeExtension time.Duration
	// AllowSelfOutbid permits the current top bidder to raise their own
	// bid without an intervening competitor.
	AllowSelfOutbid bool
}

// DefaultBidPolicy mirrors the marketplace defaults: 5% increment and a
// 15 minute anti-snipe window extending by 15 minutes.
func DefaultBidPolicy() BidPolicy {
	return BidPolicy{
		IncrementPercent: 5,
		SnipeWindow:      15 * time.Minute,
		SnipeExtension:   15 * time.Minute,
	}
}

// MinimumNextBid returns the lowest acceptable amount for the item's
// current state: the start price for a fresh lot, otherwise the current
// bid raised by the configured increment. Amounts are whole toman, so the
// increment uses truncating integer math.
func (p BidPolicy) MinimumNextBid(item *models.AuctionItem) int64 {
	if item.CurrentBid == nil {
		return item.StartPrice
	}
	return *item.CurrentBid + *item.CurrentBid*p.IncrementPercent/100
}

// ExtendedEnd reports the event end after anti-snipe handling for a bid
// accepted at now: inside the trailing window the end moves out by the
// extension, otherwise it is unchanged.
func (p BidPolicy) ExtendedEnd(end time.Time, now time.Time) (time.Time, bool) {
	if now.Before(end.Add(-p.SnipeWindow)) {
		return end, false
	}
	return end.Add(p.SnipeExtension), true
}

// Validator applies the bid acceptance rules. It only inspects state and
// never mutates it; the placement service wraps it in the transaction
// that makes the decision atomic.
type Validator struct {
	policy BidPolicy
}

func NewValidator(policy BidPolicy) *Validator {
	return &Validator{policy: policy}
}

// Check decides whether bidder may place amount on item at now.
// currentBidder is the user holding the top accepted bid, nil when the
// lot has none. Returns nil on acceptance or a *RejectError naming the
// first rule that failed; rules are checked in a fixed order so clients
// see stable reject codes.
func (v *Validator) Check(event *models.AuctionEvent, item *models.AuctionItem, currentBidder *uuid.UUID, bidder uuid.UUID, amount int64, now time.Time) error {
	if event.Status != models.EventActive || now.Before(event.StartDatetime) || now.After(event.EndDatetime) {
		return reject(CodeAuctionNotActive, FieldItem, "auction is not active", 0)
	}
	if item.Status != models.ItemActive {
		return reject(CodeItemNotActive, FieldItem, "auction item is not active", 0)
	}
	if amount <= 0 {
		return reject(CodeInvalidAmount, FieldAmount, "bid amount must be greater than zero", 0)
	}
	minimum := v.policy.MinimumNextBid(item)
	if amount < minimum {
		if item.CurrentBid == nil {
			return reject(CodeBidTooLow, FieldAmount,
				fmt.Sprintf("bid must be at least the start price of %d", minimum), minimum)
		}
		return reject(CodeBidTooLow, FieldAmount,
			fmt.Sprintf("bid must be at least %d (%d%% above the current bid)", minimum, v.policy.IncrementPercent), minimum)
	}
	if !v.policy.AllowSelfOutbid && currentBidder != nil && *currentBidder == bidder {
		return reject(CodeSelfOutbid, FieldAmount, "you already hold the highest bid", 0)
	}
	return nil
}
