package resolver

import (
	"sort"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// healthClassRank orders health classes from best to worst. Unknown
// classes rank with standard so a misconfigured class never improves an
// offer.
var healthClassRank = map[string]int{
	"preferred_plus": 0,
	"preferred":      1,
	"standard_plus":  2,
	"standard":       3,
	"substandard":    4,
}

func rankHealthClass(class string) int {
	if rank, ok := healthClassRank[class]; ok {
		return rank
	}
	return healthClassRank["standard"]
}

// Aggregate combines per-condition results into a single offer using
// worst-case semantics: the most severe eligibility wins, the worst
// health class applies, table ratings and flat extras take their maxima,
// and reasons and concerns are unioned.
func Aggregate(results []domain.ConditionResult) *domain.AggregateOutcome {
	agg := &domain.AggregateOutcome{
		Eligibility: domain.EligibilityAccept,
	}

	reasons := make(map[string]struct{})
	concerns := make(map[string]struct{})

	for _, result := range results {
		if result.Outcome == nil {
			continue
		}
		out := result.Outcome

		agg.Eligibility = domain.WorseEligibility(agg.Eligibility, out.Eligibility)

		if out.HealthClass != "" {
			if agg.HealthClass == "" || rankHealthClass(out.HealthClass) > rankHealthClass(agg.HealthClass) {
				agg.HealthClass = out.HealthClass
			}
		}
		if out.TableRating > agg.TableRating {
			agg.TableRating = out.TableRating
		}
		if out.FlatExtraPerThousand > agg.FlatExtraPerThousand {
			agg.FlatExtraPerThousand = out.FlatExtraPerThousand
			agg.FlatExtraYears = out.FlatExtraYears
		}
		if out.Reason != "" {
			reasons[out.Reason] = struct{}{}
		}
		for _, concern := range out.Concerns {
			concerns[concern] = struct{}{}
		}
	}

	agg.Reasons = sortedKeys(reasons)
	agg.Concerns = sortedKeys(concerns)
	return agg
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
