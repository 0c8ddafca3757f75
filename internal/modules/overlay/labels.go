package overlay

import (
	"sort"

	"github.com/aristath/sectorbl/pkg/formulas"
)

// LabelPeriod decides whether momentum worked over a holding period: assets
// are ranked by their 12-month change at the rebalance date and the
// equal-weighted realized return of the top half must strictly beat the
// bottom half. With an odd count the middle asset is left out. ok is false
// when fewer than two assets have both inputs.
func LabelPeriod(momentum12m, periodReturns []float64) (label bool, ok bool) {
	type pair struct{ mom, ret float64 }
	pairs := make([]pair, 0, len(momentum12m))
	for i, m := range momentum12m {
		if i >= len(periodReturns) {
			break
		}
		if formulas.IsFinite(m) && formulas.IsFinite(periodReturns[i]) {
			pairs = append(pairs, pair{m, periodReturns[i]})
		}
	}
	if len(pairs) < 2 {
		return false, false
	}

	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].mom > pairs[b].mom })

	half := len(pairs) / 2
	top, bottom := 0.0, 0.0
	for i := 0; i < half; i++ {
		top += pairs[i].ret
		bottom += pairs[len(pairs)-1-i].ret
	}
	return top > bottom, true
}
