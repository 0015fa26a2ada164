// Package quota implements the tier based admission control policy.
// The policy itself is pure; the authoritative check-and-charge happens in
// the storage layer via an atomic conditional increment.
package quota

import (
	"errors"
	"fmt"
)

// DefaultTier is assigned on registration when no tier was requested.
const DefaultTier = 3

// ErrUnknownTier is returned for a tier outside the quota table.
var ErrUnknownTier = errors.New("Unknown Tier!")

var maxRequestsByTier = map[int]int{
	1: 20,
	2: 10,
	3: 5,
}

// ExceededError is returned when a user has spent the whole quota of its tier.
type ExceededError struct {
	Tier int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Exceed Maximum Request for Tier %d", e.Tier)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed     bool
	MaxRequests int
}

// MaxRequests returns the request quota of the given tier.
func MaxRequests(tier int) (int, error) {
	max, ok := maxRequestsByTier[tier]
	if !ok {
		return 0, ErrUnknownTier
	}

	return max, nil
}

// Admit decides whether a user with the given tier and current request count
// may perform one more shorten operation. The decision is advisory: under
// concurrency the storage layer must re-check while charging the unit.
func Admit(tier, currentCount int) (Decision, error) {
	max, err := MaxRequests(tier)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:     currentCount < max,
		MaxRequests: max,
	}, nil
}

// ValidateTier checks that the tier is present in the quota table.
func ValidateTier(tier int) error {
	_, err := MaxRequests(tier)

	return err
}
