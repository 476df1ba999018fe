package merger

import "v.io/x/lib/vlog"

// MergePartition runs the full per-partition merge pipeline of spec.md
// §4.6 over streams (one SampleStream per sample, indexed by
// SampleStream.SampleIndex): N-way merge, solidity filtering, and
// dispatch of every surviving row to proc. Rows the solidity predicate
// drops entirely (recurrence-min not met) never reach proc.
func MergePartition(streams []*SampleStream, nSamples int, order KeyOrder, softMin []uint64, recurrenceMin, shareMin int, proc RowProcessor) error {
	dropped := 0
	err := Merge(streams, nSamples, order, func(row Row) error {
		values, keep := ApplySolidity(row.Values, softMin, recurrenceMin, shareMin)
		if !keep {
			dropped++
			return nil
		}
		return proc.Process(Row{Key: row.Key, Values: values})
	})
	vlog.VI(1).Infof("merger: partition solidity predicate dropped %d rows", dropped)
	return err
}
