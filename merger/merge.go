package merger

import (
	"github.com/biogo/store/llrb"
	"v.io/x/lib/vlog"
)

// mergeLeaf is one llrb.Comparable leaf over a SampleStream's current head
// key, mirroring sorter.mergeLeaf from cmd/bio-bam-sort/sorter/sort.go:
// the tree always holds one leaf per still-open stream, and repeatedly
// pulling the current minimum via Do+DeleteMin plays the role a heap would.
type mergeLeaf struct {
	stream *SampleStream
	order  KeyOrder
}

func (l *mergeLeaf) Compare(other llrb.Comparable) int {
	o := other.(*mergeLeaf)
	a, _ := l.stream.Peek()
	b, _ := o.stream.Peek()
	switch {
	case l.order.Less(a.Key, b.Key):
		return -1
	case l.order.Less(b.Key, a.Key):
		return 1
	case l.stream.SampleIndex == o.stream.SampleIndex:
		return 0
	case l.stream.SampleIndex < o.stream.SampleIndex:
		return -1
	default:
		return 1
	}
}

// Merge performs the N-way merge of spec.md §4.6 across streams (one per
// sample, for a single partition): at each step it gathers every stream
// whose head key equals the current minimum into one Row — with samples
// in increasing SampleIndex order, per the spec's "pop order is stable by
// sample index" determinism requirement — and calls emit. nSamples is the
// total sample count (Row.Values is always that wide, zero-filled for
// samples absent at this key).
func Merge(streams []*SampleStream, nSamples int, order KeyOrder, emit func(Row) error) error {
	tree := llrb.Tree{}
	for _, s := range streams {
		if _, ok := s.Peek(); ok {
			tree.Insert(&mergeLeaf{stream: s, order: order})
		}
	}
	vlog.VI(1).Infof("merger: starting %d-way merge, %d streams open", nSamples, tree.Len())

	rows := 0
	for tree.Len() > 0 {
		var top *mergeLeaf
		tree.Do(func(item llrb.Comparable) bool { top = item.(*mergeLeaf); return false })
		minKey, _ := top.stream.Peek()

		values := make([]uint64, nSamples)
		for tree.Len() > 0 {
			var cur *mergeLeaf
			tree.Do(func(item llrb.Comparable) bool { cur = item.(*mergeLeaf); return false })
			e, _ := cur.stream.Peek()
			if !order.Equal(e.Key, minKey.Key) {
				break
			}
			values[cur.stream.SampleIndex] = e.Count
			tree.DeleteMin()
			if err := cur.stream.Advance(); err != nil {
				return err
			}
			if _, ok := cur.stream.Peek(); ok {
				tree.Insert(cur)
			}
		}
		if err := emit(Row{Key: minKey.Key, Values: values}); err != nil {
			return err
		}
		rows++
	}
	vlog.VI(1).Infof("merger: merge done, %d rows emitted", rows)
	return nil
}
