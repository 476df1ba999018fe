// Package filtertool implements spec.md §2's filter/intersection tool:
// keep only the rows of an existing matrix whose key is also present in a
// new sample's k-mer or hash stream, optionally appending that sample's
// own abundance as an extra matrix column. It is a merge-join over two
// already-sorted streams, the same shape as merger.Merge's N-way merge
// specialized to two inputs of different kinds (a matrix row source and a
// counter.Reader).
package filtertool

import (
	"fmt"

	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/merger"
)

// MatrixSource yields a partition's matrix rows in ascending key order.
// merger.CountMatrixReader and merger.PAMatrixReader both satisfy it.
type MatrixSource interface {
	Next() (merger.Row, bool, error)
}

// Filter reads matrix in key order, advancing newSample in lockstep, and
// calls proc.Process for every matrix row whose key is also present in
// newSample. A row's own Values are passed through unchanged; when
// appendColumn is set, newSample's abundance for that key is appended as
// one more column, so a count matrix gains a new sample column and a pa
// matrix gains a new presence/absence bit (the caller decides which by
// choosing how it rescales Values before writing). Filter does not close
// proc: the caller owns that, same as merger.Merge's emit callback leaves
// closing the RowProcessor to its caller.
func Filter(matrix MatrixSource, newSample *counter.Reader, order merger.KeyOrder, appendColumn bool, proc merger.RowProcessor) error {
	cur, haveCur, err := newSample.Next()
	if err != nil {
		return fmt.Errorf("filtertool: reading new sample stream: %w", err)
	}

	for {
		row, ok, err := matrix.Next()
		if err != nil {
			return fmt.Errorf("filtertool: reading matrix: %w", err)
		}
		if !ok {
			return nil
		}

		for haveCur && order.Less(cur.Key, row.Key) {
			cur, haveCur, err = newSample.Next()
			if err != nil {
				return fmt.Errorf("filtertool: reading new sample stream: %w", err)
			}
		}

		if !haveCur || !order.Equal(cur.Key, row.Key) {
			continue
		}

		if appendColumn {
			values := make([]uint64, len(row.Values)+1)
			copy(values, row.Values)
			values[len(row.Values)] = cur.Count
			row = merger.Row{Key: row.Key, Values: values}
		}

		if err := proc.Process(row); err != nil {
			return fmt.Errorf("filtertool: writing row: %w", err)
		}
	}
}
