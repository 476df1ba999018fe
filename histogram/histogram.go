// Package histogram implements a per-sample abundance histogram: counts of
// distinct k-mers (and total occurrences) by abundance value, with
// out-of-band totals for abundances outside [Lower, Upper), plus quantile
// lookups used by merge-time soft-min autocompute.
package histogram

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// Histogram accumulates one sample's abundance distribution over the
// half-open bucket range [Lower, Upper). Abundances below Lower or at/above
// Upper are folded into the out-of-band totals rather than tracked
// per-value, keeping the in-memory array bounded regardless of how large a
// single k-mer's count gets.
type Histogram struct {
	SampleID uint32
	K        uint8
	Lower    uint32
	Upper    uint32

	uniq []uint64 // uniq[i] = distinct k-mers with abundance Lower+i
	occ  []uint64 // occ[i] = total occurrences contributing to that bucket (== uniq[i]*(Lower+i) for a single accumulation, but tracked separately since merge sums differ)

	OOBLowUniq, OOBLowOcc   uint64
	OOBHighUniq, OOBHighOcc uint64
}

// New allocates a histogram over [lower, upper).
func New(sampleID uint32, k uint8, lower, upper uint32) *Histogram {
	if upper <= lower {
		panic(fmt.Sprintf("histogram: upper %d must exceed lower %d", upper, lower))
	}
	n := int(upper - lower)
	return &Histogram{
		SampleID: sampleID,
		K:        k,
		Lower:    lower,
		Upper:    upper,
		uniq:     make([]uint64, n),
		occ:      make([]uint64, n),
	}
}

// Add records one distinct k-mer observed with the given abundance.
func (h *Histogram) Add(abundance uint32) {
	switch {
	case abundance < h.Lower:
		h.OOBLowUniq++
		h.OOBLowOcc += uint64(abundance)
	case abundance >= h.Upper:
		h.OOBHighUniq++
		h.OOBHighOcc += uint64(abundance)
	default:
		i := abundance - h.Lower
		h.uniq[i]++
		h.occ[i] += uint64(abundance)
	}
}

// UniqTotal returns the total number of distinct k-mers tracked, in-band or
// out-of-band.
func (h *Histogram) UniqTotal() uint64 {
	total := h.OOBLowUniq + h.OOBHighUniq
	for _, v := range h.uniq {
		total += v
	}
	return total
}

// OccTotal returns the total occurrence count across all buckets.
func (h *Histogram) OccTotal() uint64 {
	total := h.OOBLowOcc + h.OOBHighOcc
	for _, v := range h.occ {
		total += v
	}
	return total
}

// UniqAt returns the distinct-k-mer count at abundance value v (v must be
// in [Lower, Upper)).
func (h *Histogram) UniqAt(v uint32) uint64 { return h.uniq[v-h.Lower] }

// Merge adds other's counts into h. Both histograms must share the same
// [Lower, Upper) range and sample; used to combine per-partition histogram
// shards for one sample into a whole-sample histogram.
func (h *Histogram) Merge(other *Histogram) error {
	if h.Lower != other.Lower || h.Upper != other.Upper {
		return fmt.Errorf("histogram: range mismatch [%d,%d) vs [%d,%d)", h.Lower, h.Upper, other.Lower, other.Upper)
	}
	for i := range h.uniq {
		h.uniq[i] += other.uniq[i]
		h.occ[i] += other.occ[i]
	}
	h.OOBLowUniq += other.OOBLowUniq
	h.OOBLowOcc += other.OOBLowOcc
	h.OOBHighUniq += other.OOBHighUniq
	h.OOBHighOcc += other.OOBHighOcc
	return nil
}

// Quantile returns the smallest abundance value a such that the cumulative
// unique-k-mer mass at or below a is >= fraction f of UniqTotal, per the
// soft-min autocompute rule. Returns Upper-1 if f is never reached within
// range (the most conservative threshold).
func (h *Histogram) Quantile(f float64) uint32 {
	total := h.UniqTotal()
	if total == 0 {
		return h.Lower
	}
	target := f * float64(total)
	var cum uint64 = h.OOBLowUniq
	for i, v := range h.uniq {
		cum += v
		if float64(cum) >= target {
			return h.Lower + uint32(i)
		}
	}
	return h.Upper - 1
}

// Save persists the histogram as a rundir.HistFileHeader followed by the
// dense uniq/occ arrays.
func (h *Histogram) Save(path string) (err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Create(ctx, path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)
	hdr := rundir.HistFileHeader{
		SampleID:  h.SampleID,
		K:         h.K,
		Lower:     h.Lower,
		Upper:     h.Upper,
		UniqTotal: h.UniqTotal(),
		OccTotal:  h.OccTotal(),
	}
	if err = hdr.Write(w); err != nil {
		return err
	}
	if err = binary.Write(w, binary.LittleEndian, h.uniq); err != nil {
		return err
	}
	if err = binary.Write(w, binary.LittleEndian, h.occ); err != nil {
		return err
	}
	oob := [4]uint64{h.OOBLowUniq, h.OOBLowOcc, h.OOBHighUniq, h.OOBHighOcc}
	return binary.Write(w, binary.LittleEndian, oob)
}

// Load reads a histogram previously written by Save.
func Load(path string) (h *Histogram, err error) {
	ctx := vcontext.Background()
	var f file.File
	if f, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, f, &err)
	r := f.Reader(ctx)
	hdr, err := rundir.ReadHistFileHeader(r)
	if err != nil {
		return nil, err
	}
	h = New(hdr.SampleID, hdr.K, hdr.Lower, hdr.Upper)
	if err = binary.Read(r, binary.LittleEndian, h.uniq); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, h.occ); err != nil {
		return nil, err
	}
	var oob [4]uint64
	if err = binary.Read(r, binary.LittleEndian, &oob); err != nil {
		return nil, err
	}
	h.OOBLowUniq, h.OOBLowOcc, h.OOBHighUniq, h.OOBHighOcc = oob[0], oob[1], oob[2], oob[3]
	return h, nil
}
