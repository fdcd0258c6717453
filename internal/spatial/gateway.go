// Package spatial wraps the two spatial lookup capabilities behind a
// stable interface: proximity search for listed buildings and containment
// search for conservation areas.
package spatial

import (
	"context"

	"github.com/planmatter/heritage-cli/internal/model"
)

// Outcome distinguishes the three results of a spatial lookup. A lookup
// that could not be completed is Unverified, never Absent: "couldn't
// check" must stay distinguishable from "confirmed not there".
type Outcome int

const (
	// OutcomeFound means the capability returned a match.
	OutcomeFound Outcome = iota
	// OutcomeAbsent means the query ran and confirmed no match exists.
	OutcomeAbsent
	// OutcomeUnverified means both query paths failed; absence of a match
	// carries no information.
	OutcomeUnverified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeAbsent:
		return "absent"
	case OutcomeUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Lookup is the result of a single spatial capability call. Match is
// non-nil only when Outcome is OutcomeFound.
type Lookup[T any] struct {
	Outcome Outcome
	Match   *T
}

// Found wraps a match.
func Found[T any](m *T) Lookup[T] {
	return Lookup[T]{Outcome: OutcomeFound, Match: m}
}

// Absent reports a confirmed no-match.
func Absent[T any]() Lookup[T] {
	return Lookup[T]{Outcome: OutcomeAbsent}
}

// Unverified reports that the lookup could not be completed.
func Unverified[T any]() Lookup[T] {
	return Lookup[T]{Outcome: OutcomeUnverified}
}

// Gateway exposes the two spatial capabilities. Implementations never
// return errors: every failure mode is absorbed into OutcomeUnverified
// after the fallback path has been exhausted.
type Gateway interface {
	// NearestListedBuilding finds the single nearest listed building
	// within radiusMeters of the point. Ties are broken by lowest list
	// entry number.
	NearestListedBuilding(ctx context.Context, coord model.Coordinates, radiusMeters float64) Lookup[model.ListedBuildingMatch]

	// ConservationArea finds the conservation area polygon containing the
	// point, if any.
	ConservationArea(ctx context.Context, coord model.Coordinates) Lookup[model.ConservationAreaMatch]
}
