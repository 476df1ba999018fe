package merger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/rundir"
)

func writeSample(t *testing.T, path string, entries []counter.Entry, isHashes bool) {
	t.Helper()
	w, err := counter.Create(path, rundir.KmerFileHeader{
		KeyWidth: 8, CountWidth: 1, K: 8, IsHashes: isHashes,
	})
	expect.NoError(t, err)
	for _, e := range entries {
		expect.NoError(t, w.WriteEntry(e))
	}
	expect.NoError(t, w.Close())
}

func openStreams(t *testing.T, dir string, names []string) []*SampleStream {
	t.Helper()
	streams := make([]*SampleStream, len(names))
	for i, name := range names {
		s, err := OpenSampleStream(filepath.Join(dir, name), i)
		expect.NoError(t, err)
		streams[i] = s
	}
	return streams
}

func TestMergeCombinesMatchingKeysAcrossSamples(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, filepath.Join(dir, "s0"), []counter.Entry{
		{Key: uint64(10), Count: 3}, {Key: uint64(20), Count: 1},
	}, true)
	writeSample(t, filepath.Join(dir, "s1"), []counter.Entry{
		{Key: uint64(10), Count: 5},
	}, true)

	streams := openStreams(t, dir, []string{"s0", "s1"})
	var rows []Row
	expect.NoError(t, Merge(streams, 2, HashOrder, func(r Row) error {
		rows = append(rows, r)
		return nil
	}))

	expect.EQ(t, len(rows), 2)
	expect.EQ(t, rows[0].Key.(uint64), uint64(10))
	expect.EQ(t, rows[0].Values, []uint64{3, 5})
	expect.EQ(t, rows[1].Key.(uint64), uint64(20))
	expect.EQ(t, rows[1].Values, []uint64{1, 0})
}

func TestMergeTreatsMissingFileAsEmptyStream(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, filepath.Join(dir, "s0"), []counter.Entry{{Key: uint64(1), Count: 2}}, true)

	s0, err := OpenSampleStream(filepath.Join(dir, "s0"), 0)
	expect.NoError(t, err)
	s1, err := OpenSampleStream(filepath.Join(dir, "missing"), 1)
	expect.NoError(t, err)
	expect.True(t, s1.Exhausted())

	var rows []Row
	expect.NoError(t, Merge([]*SampleStream{s0, s1}, 2, HashOrder, func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	expect.EQ(t, len(rows), 1)
	expect.EQ(t, rows[0].Values, []uint64{2, 0})
}

func TestApplySoliditySoftMinZeroesBelowThreshold(t *testing.T) {
	values, keep := ApplySolidity([]uint64{5, 1, 0}, []uint64{2, 2, 2}, 0, 0)
	expect.True(t, keep)
	expect.EQ(t, values, []uint64{5, 0, 0})
}

func TestApplySolidityRecurrenceMinDropsRow(t *testing.T) {
	_, keep := ApplySolidity([]uint64{5, 0, 0}, []uint64{1, 1, 1}, 2, 0)
	expect.False(t, keep)
}

func TestApplySolidityShareMinRescues(t *testing.T) {
	// samples 0,1 pass soft-min (>=3); sample 2 has raw=2 < softmin 3 but
	// 2 other samples passed, >= shareMin of 2, so it is rescued.
	values, keep := ApplySolidity([]uint64{5, 4, 2}, []uint64{3, 3, 3}, 1, 2)
	expect.True(t, keep)
	expect.EQ(t, values, []uint64{5, 4, 2})
}

func TestApplySolidityShareMinDoesNotRescueBelowThreshold(t *testing.T) {
	values, keep := ApplySolidity([]uint64{5, 0, 2}, []uint64{3, 3, 3}, 1, 5)
	expect.True(t, keep)
	expect.EQ(t, values, []uint64{5, 0, 0}) // only 1 other sample passed, shareMin=5 not met
}

func TestCountWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.count")
	cw, err := NewCountWriter(path, 0, 21, 8, 1, 2, true)
	expect.NoError(t, err)
	expect.NoError(t, cw.Process(Row{Key: uint64(7), Values: []uint64{3, 9}}))
	expect.NoError(t, cw.Close())

	raw, err := os.Open(path)
	expect.NoError(t, err)
	defer raw.Close()
	hdr, err := rundir.ReadCountMatrixFileHeader(raw)
	expect.NoError(t, err)
	expect.EQ(t, hdr.NbCounts, uint32(2))
	expect.EQ(t, hdr.MatrixType, MatrixCount)
}

func TestPAWriterEncodesPresenceBits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.pa")
	pw, err := NewPAWriter(path, 0, 21, 8, 10, true)
	expect.NoError(t, err)
	expect.NoError(t, pw.Process(Row{Key: uint64(1), Values: []uint64{0, 1, 0, 1, 0, 0, 0, 0, 0, 1}}))
	expect.NoError(t, pw.Close())
}

func TestBFWriterSetsBitsWithinWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.bf")
	w := NewBFWriter(path, 1, 100, 3) // partition 1, window [100,200)
	expect.NoError(t, w.Process(Row{Key: uint64(150), Values: []uint64{1, 0, 1}}))
	expect.NoError(t, w.Process(Row{Key: uint64(5), Values: []uint64{1, 1, 1}})) // out of window, ignored
	expect.NoError(t, w.Close())
}

func TestBFCWriterClampsToBitWidth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.bfc")
	w := NewBFCWriter(path, 0, 10, 2, 4) // bit width 4 -> max cell value 15
	expect.NoError(t, w.Process(Row{Key: uint64(3), Values: []uint64{100, 0}}))
	expect.NoError(t, w.Close())
}

func TestResolveSoftMinUniform(t *testing.T) {
	u := uint64(4)
	out, err := ResolveSoftMin(SoftMinSpec{Uniform: &u}, 3, nil)
	expect.NoError(t, err)
	expect.EQ(t, out, []uint64{4, 4, 4})
}

func TestResolveSoftMinVectorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soft.txt")
	expect.NoError(t, writeLines(path, []string{"1", "2", "3"}))
	out, err := ResolveSoftMin(SoftMinSpec{VectorFile: path}, 3, nil)
	expect.NoError(t, err)
	expect.EQ(t, out, []uint64{1, 2, 3})
}

func writeLines(path string, lines []string) error {
	var buf []byte
	for _, l := range lines {
		buf = append(buf, []byte(l+"\n")...)
	}
	return os.WriteFile(path, buf, 0o644)
}
