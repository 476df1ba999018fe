package repart

import "sort"

// Build assigns every m-mer value 0..4^m-1 a partition in [0,P), from
// counts sampled from a prefix of the input bank (counts[v] = observed
// occurrences of canonical m-mer value v). The resulting table is
// deterministic given identical (counts, p, m, mode), which is what makes
// repart-from reuse byte-exact.
func Build(counts []uint64, p, m int, mode Mode) *Table {
	t := NewTable(p, m, mode)
	switch mode {
	case Frequency:
		buildFrequency(t, counts)
	default:
		buildLexicographic(t, counts)
	}
	return t
}

// buildLexicographic assigns contiguous ranges of m-mer value to
// partitions, balancing each partition's total count rather than the
// number of values it holds: walk values in order, accumulating count,
// and cut to the next partition as soon as adding the next value would
// push a non-empty partition's running total past the even share.
func buildLexicographic(t *Table, counts []uint64) {
	var total uint64
	for _, c := range counts {
		total += c
	}
	target := total / uint64(t.P)
	if target == 0 {
		target = 1
	}
	part := uint16(0)
	var acc uint64
	for v := 0; v < t.Len(); v++ {
		if part < t.P-1 && acc > 0 && acc+counts[v] > target {
			part++
			acc = 0
		}
		t.Set(uint32(v), part)
		acc += counts[v]
	}
}

// buildFrequency ranks m-mer values from rarest to most common and greedily
// assigns each to the currently least-loaded partition, so no single
// partition accumulates a disproportionate share of the common values that
// dominate memory use downstream. The rank permutation is retained in
// t.FreqOrder so a later repart-from run reproduces the identical
// assignment without re-sampling.
func buildFrequency(t *Table, counts []uint64) {
	n := t.Len()
	order := make([]uint32, n)
	for v := range order {
		order[v] = uint32(v)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] < counts[order[j]]
	})
	t.FreqOrder = order

	load := make([]uint64, t.P)
	for _, v := range order {
		least := uint16(0)
		for p := uint16(1); p < t.P; p++ {
			if load[p] < load[least] {
				least = p
			}
		}
		t.Set(v, least)
		load[least] += counts[v]
	}
}
