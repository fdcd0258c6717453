package heritage

import (
	"github.com/planmatter/heritage-cli/internal/model"
	"github.com/planmatter/heritage-cli/internal/spatial"
)

// Resolve maps the two spatial lookups to a classification. Statutory
// listing outranks conservation-area designation, which outranks
// unconstrained:
//
//	listed building present            → RED (conservation area still attached for display)
//	conservation area only             → AMBER, Article 4 fields copied from the match
//	neither                            → GREEN
//
// A lookup that came back unverified marks the whole result unverified:
// its absence means "couldn't check", not "confirmed clear".
//
// The caller assigns RequestID and ClassifiedAt; Resolve itself is pure.
func Resolve(
	coord model.Coordinates,
	address, postcode string,
	lb spatial.Lookup[model.ListedBuildingMatch],
	ca spatial.Lookup[model.ConservationAreaMatch],
) *model.ClassificationResult {
	res := &model.ClassificationResult{
		Status:      model.StatusGreen,
		Coordinates: coord,
		Address:     address,
		Postcode:    postcode,
		Unverified:  lb.Outcome == spatial.OutcomeUnverified || ca.Outcome == spatial.OutcomeUnverified,
	}

	if ca.Outcome == spatial.OutcomeFound {
		res.ConservationArea = ca.Match
		res.Borough = ca.Match.Borough
	}

	if lb.Outcome == spatial.OutcomeFound {
		res.Status = model.StatusRed
		res.ListedBuilding = lb.Match
		if res.Borough == "" {
			res.Borough = lb.Match.Borough
		}
		return res
	}

	if ca.Outcome == spatial.OutcomeFound {
		res.Status = model.StatusAmber
		res.HasArticle4 = ca.Match.HasArticle4
		res.Article4Restrictions = ca.Match.Article4Restrictions
	}

	return res
}
