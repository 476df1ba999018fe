package counter

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/kmtricks/kmtricks-go/histogram"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

// VectorSort implements spec.md §4.5's hash-mode "vector sort" strategy:
// collect every hash value into one slice, sort it, and run-length-encode
// it into (hash, saturated count) entries. Used when the per-partition
// hash stream is expected to fit comfortably in memory.
func VectorSort(hashes []uint64, minAbundance uint64, countWidth int, hist *histogram.Histogram, emit func(Entry)) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	i := 0
	for i < len(hashes) {
		j := i + 1
		for j < len(hashes) && hashes[j] == hashes[i] {
			j++
		}
		count := uint64(j - i)
		if count >= minAbundance {
			emit(Entry{Key: hashes[i], Count: Saturate(count, countWidth)})
		} else if hist != nil {
			hist.Add(uint32(count))
		}
		i = j
	}
}

// Spiller implements the hash-mode "hash-map accumulate, spill on
// overflow" strategy: a bounded in-memory `hash -> count` table that
// flushes its contents as a sorted run to a temporary file whenever it
// reaches MaxEntries distinct hashes, mirroring sorter.Sorter's "accumulate a batch, sort
// it, flush to a shard file" shape from cmd/bio-bam-sort/sorter/sort.go.
type Spiller struct {
	MaxEntries int
	TmpDir     string

	table   map[uint64]uint32
	spilled []string
}

// NewSpiller creates a Spiller with the given in-memory entry budget.
func NewSpiller(maxEntries int, tmpDir string) *Spiller {
	return &Spiller{
		MaxEntries: maxEntries,
		TmpDir:     tmpDir,
		table:      make(map[uint64]uint32),
	}
}

// Add records one occurrence of hash, then spills the table to a temporary
// file if it now holds MaxEntries distinct hashes.
func (s *Spiller) Add(hash uint64) error {
	if s.table[hash]+1 == 0 { // would wrap past uint32 max
		s.table[hash] = ^uint32(0)
	} else {
		s.table[hash]++
	}
	if len(s.table) < s.MaxEntries {
		return nil
	}
	return s.spill()
}

func (s *Spiller) spill() error {
	if len(s.table) == 0 {
		return nil
	}
	keys := make([]uint64, 0, len(s.table))
	for k := range s.table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	tmp, err := ioutil.TempFile(s.TmpDir, "kmtricks-spill-*.bin.gz")
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(tmp)
	for _, k := range keys {
		if err := binary.Write(gw, binary.LittleEndian, k); err != nil {
			gw.Close()
			tmp.Close()
			return err
		}
		if err := binary.Write(gw, binary.LittleEndian, s.table[k]); err != nil {
			gw.Close()
			tmp.Close()
			return err
		}
	}
	if err := gw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	s.spilled = append(s.spilled, tmp.Name())
	s.table = make(map[uint64]uint32)
	vlog.VI(1).Infof("counter: spilled hash table to %s, %d runs so far", tmp.Name(), len(s.spilled))
	return nil
}

// spillLeaf is one llrb.Comparable leaf reading sequential (hash,count)
// pairs out of a gzip-compressed spilled run file.
type spillLeaf struct {
	seq   int
	f     *os.File
	gz    *gzip.Reader
	hash  uint64
	count uint32
	done  bool
}

func openSpillLeaf(seq int, path string) (*spillLeaf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	l := &spillLeaf{seq: seq, f: f, gz: gz}
	if !l.advance() {
		l.close()
		return nil, nil
	}
	return l, nil
}

func (l *spillLeaf) close() {
	l.gz.Close()
	l.f.Close()
}

func (l *spillLeaf) advance() bool {
	var hash uint64
	var count uint32
	if err := binary.Read(l.gz, binary.LittleEndian, &hash); err != nil {
		l.done = true
		return false
	}
	if err := binary.Read(l.gz, binary.LittleEndian, &count); err != nil {
		l.done = true
		return false
	}
	l.hash, l.count = hash, count
	return true
}

func (l *spillLeaf) Compare(other llrb.Comparable) int {
	var oh uint64
	var oseq int
	switch o := other.(type) {
	case *spillLeaf:
		oh, oseq = o.hash, o.seq
	case *memLeaf:
		oh, oseq = o.hashes[o.pos], o.seq
	}
	switch {
	case l.hash < oh:
		return -1
	case l.hash > oh:
		return 1
	}
	return tieBreak(l.seq, oseq)
}

// memLeaf is an llrb.Comparable leaf over the final in-memory table's
// sorted (hash,count) pairs, merged alongside any spilled runs.
type memLeaf struct {
	seq    int
	hashes []uint64
	table  map[uint64]uint32
	pos    int
}

func (l *memLeaf) Compare(other llrb.Comparable) int {
	lh := l.hashes[l.pos]
	switch o := other.(type) {
	case *memLeaf:
		oh := o.hashes[o.pos]
		if lh != oh {
			if lh < oh {
				return -1
			}
			return 1
		}
	case *spillLeaf:
		if lh != o.hash {
			if lh < o.hash {
				return -1
			}
			return 1
		}
		return tieBreak(l.seq, o.seq)
	}
	return tieBreak(l.seq, other.(*memLeaf).seq)
}

func tieBreak(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Finish N-way merges every spilled run with the final in-memory table,
// emitting (hash, saturated count) entries honoring minAbundance and
// folding the rest into hist, then removes the spill files.
func (s *Spiller) Finish(minAbundance uint64, countWidth int, hist *histogram.Histogram, emit func(Entry)) error {
	memHashes := make([]uint64, 0, len(s.table))
	for h := range s.table {
		memHashes = append(memHashes, h)
	}
	sort.Slice(memHashes, func(i, j int) bool { return memHashes[i] < memHashes[j] })

	defer func() {
		for _, p := range s.spilled {
			os.Remove(p)
		}
	}()

	if len(s.spilled) == 0 {
		// Nothing was ever spilled: the in-memory table already holds every
		// occurrence, so a direct pass suffices (no merge needed).
		for _, h := range memHashes {
			count := uint64(s.table[h])
			emitOrHist(h, count, minAbundance, countWidth, hist, emit)
		}
		return nil
	}

	tree := llrb.Tree{}
	seq := 0
	if len(memHashes) > 0 {
		tree.Insert(&memLeaf{seq: seq, hashes: memHashes, table: s.table})
		seq++
	}
	for _, path := range s.spilled {
		l, err := openSpillLeaf(seq, path)
		if err != nil {
			return fmt.Errorf("counter: opening spill run %s: %w", path, err)
		}
		seq++
		if l != nil {
			tree.Insert(l)
		}
	}

	var curHash uint64
	var curCount uint64
	haveCur := false
	flush := func() {
		if haveCur {
			emitOrHist(curHash, curCount, minAbundance, countWidth, hist, emit)
		}
	}

	for tree.Len() > 0 {
		var top llrb.Comparable
		tree.Do(func(item llrb.Comparable) bool { top = item; return false })

		var h uint64
		var c uint64
		switch v := top.(type) {
		case *memLeaf:
			h = v.hashes[v.pos]
			c = uint64(v.table[h])
		case *spillLeaf:
			h, c = v.hash, uint64(v.count)
		}

		if haveCur && h == curHash {
			curCount += c
		} else {
			flush()
			curHash, curCount, haveCur = h, c, true
		}

		tree.DeleteMin()
		switch v := top.(type) {
		case *memLeaf:
			v.pos++
			if v.pos < len(v.hashes) {
				tree.Insert(v)
			}
		case *spillLeaf:
			if v.advance() {
				tree.Insert(v)
			} else {
				v.close()
			}
		}
	}
	flush()
	return nil
}

func emitOrHist(hash, count, minAbundance uint64, countWidth int, hist *histogram.Histogram, emit func(Entry)) {
	if count >= minAbundance {
		emit(Entry{Key: hash, Count: Saturate(count, countWidth)})
	} else if hist != nil {
		hist.Add(uint32(count))
	}
}
