package merger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/kmtricks/kmtricks-go/histogram"
)

// SoftMinSpec describes how merge-time soft-min thresholds are given on the
// command line, per spec.md §4.6's "Soft-min autocompute": a single
// integer applied uniformly, a per-sample vector file (one line per
// sample), or a quantile fraction in [0,1] autocomputed from each sample's
// histogram. Exactly one field should be set; ResolveSoftMin panics if
// none are.
type SoftMinSpec struct {
	Uniform  *uint64
	VectorFile string
	Quantile *float64
}

// ResolveSoftMin turns a SoftMinSpec into one threshold per sample
// (length n). hists[i], if non-nil, is sample i's histogram, required
// only when Quantile is set.
func ResolveSoftMin(spec SoftMinSpec, n int, hists []*histogram.Histogram) ([]uint64, error) {
	out := make([]uint64, n)
	switch {
	case spec.Uniform != nil:
		for i := range out {
			out[i] = *spec.Uniform
		}
	case spec.VectorFile != "":
		f, err := os.Open(spec.VectorFile)
		if err != nil {
			return nil, fmt.Errorf("merger: reading soft-min vector file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for i := 0; i < n; i++ {
			if !sc.Scan() {
				return nil, fmt.Errorf("merger: soft-min vector file has fewer than %d lines", n)
			}
			v, err := strconv.ParseUint(sc.Text(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("merger: soft-min vector file line %d: %w", i+1, err)
			}
			out[i] = v
		}
	case spec.Quantile != nil:
		for i := range out {
			if hists[i] == nil {
				return nil, fmt.Errorf("merger: soft-min quantile requires sample %d's histogram", i)
			}
			out[i] = uint64(hists[i].Quantile(*spec.Quantile))
		}
	default:
		panic("merger: SoftMinSpec has no field set")
	}
	return out, nil
}

// ApplySolidity implements spec.md §4.6's solidity predicate chain, in the
// order the spec lists it: soft-min zeroes out values that don't clear
// their sample's threshold; recurrence-min decides, from the post-soft-min
// survivor count, whether the row is emitted at all; share-min then
// rescues a sample's original abundance (only for rows already kept) when
// enough *other* samples cleared soft-min on their own. hard-min is not
// applied here — it was already enforced by the counter, so raw never
// contains a below-threshold abundance in the first place.
func ApplySolidity(raw []uint64, softMin []uint64, recurrenceMin, shareMin int) (values []uint64, keep bool) {
	n := len(raw)
	values = make([]uint64, n)
	passed := make([]bool, n)
	passedCount := 0
	for i, v := range raw {
		if v > 0 && v >= softMin[i] {
			values[i] = v
			passed[i] = true
			passedCount++
		}
	}
	if passedCount < recurrenceMin {
		return nil, false
	}
	if shareMin > 0 {
		for i, v := range raw {
			if v > 0 && !passed[i] && passedCount >= shareMin {
				values[i] = v
			}
		}
	}
	return values, true
}
