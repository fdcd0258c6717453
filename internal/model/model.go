// Package model defines the shared domain types for heritage classification.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Status is the overall planning-constraint status of a property.
// RED outranks AMBER, which outranks GREEN.
type Status string

const (
	// StatusRed means the property is (or contains) a statutorily listed building.
	StatusRed Status = "RED"
	// StatusAmber means the property sits inside a conservation area but is not listed.
	StatusAmber Status = "AMBER"
	// StatusGreen means no heritage constraint was found.
	StatusGreen Status = "GREEN"
)

// Grade is the statutory listing grade of a listed building.
// Grade I is the highest level of protection, Grade II the lowest.
type Grade string

const (
	GradeI      Grade = "I"
	GradeIIStar Grade = "II*"
	GradeII     Grade = "II"
)

// gradeAliases maps the spellings seen in Historic England exports to the
// canonical grade values.
var gradeAliases = map[string]Grade{
	"I":   GradeI,
	"1":   GradeI,
	"II*": GradeIIStar,
	"2*":  GradeIIStar,
	"II":  GradeII,
	"2":   GradeII,
}

// ParseGrade normalizes a raw grade string. Unknown values default to
// Grade II, the most common listing grade.
func ParseGrade(raw string) Grade {
	if g, ok := gradeAliases[raw]; ok {
		return g
	}
	return GradeII
}

// ErrInvalidCoordinates is returned when a lat/lng pair is outside the
// valid WGS84 ranges.
var ErrInvalidCoordinates = eris.New("model: coordinates out of range")

// Coordinates is a WGS84 point. Immutable value type.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the lat/lng ranges.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return eris.Wrapf(ErrInvalidCoordinates, "lat=%f lng=%f", c.Lat, c.Lng)
	}
	return nil
}

// ListedBuildingMatch describes the nearest listed building found within
// the search radius.
type ListedBuildingMatch struct {
	ID               string  `json:"id"`
	ListEntryNumber  string  `json:"list_entry_number"`
	Name             string  `json:"name"`
	Grade            Grade   `json:"grade"`
	Borough          string  `json:"borough,omitempty"`
	DistanceMeters   float64 `json:"distance_meters"`
	DocumentationURL string  `json:"documentation_url,omitempty"`
}

// ConservationAreaMatch describes the conservation area polygon containing
// the query point.
type ConservationAreaMatch struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Borough              string   `json:"borough,omitempty"`
	HasArticle4          bool     `json:"has_article_4"`
	Article4Restrictions []string `json:"article_4_restrictions,omitempty"`
}

// ClassificationResult is the unit of caching and the unit returned to
// callers. It is never mutated after construction; cache hits receive a
// copy with a fresh RequestID.
type ClassificationResult struct {
	RequestID   string      `json:"request_id"`
	Status      Status      `json:"status"`
	Coordinates Coordinates `json:"coordinates"`
	Address     string      `json:"address,omitempty"`
	Postcode    string      `json:"postcode,omitempty"`
	Borough     string      `json:"borough,omitempty"`

	ListedBuilding   *ListedBuildingMatch   `json:"listed_building,omitempty"`
	ConservationArea *ConservationAreaMatch `json:"conservation_area,omitempty"`

	// Article 4 fields are populated only when Status is AMBER, copied
	// verbatim from the conservation area match.
	HasArticle4          bool     `json:"has_article_4"`
	Article4Restrictions []string `json:"article_4_restrictions,omitempty"`

	// Unverified is true when at least one spatial lookup could not be
	// completed, so an absent match means "couldn't check" rather than
	// "confirmed absent".
	Unverified bool `json:"unverified,omitempty"`

	ClassifiedAt time.Time `json:"classified_at"`
}

// WithRequestID returns a copy of the result carrying a new per-request
// identifier. The underlying match pointers are shared; matches are
// immutable once constructed.
func (r *ClassificationResult) WithRequestID(id string) *ClassificationResult {
	cp := *r
	cp.RequestID = id
	return &cp
}
