package filtertool

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/kmtricks/kmtricks-go/counter"
	"github.com/kmtricks/kmtricks-go/merger"
	"github.com/kmtricks/kmtricks-go/rundir"
)

// fakeMatrixSource replays a fixed, already-sorted slice of rows, standing
// in for merger.CountMatrixReader/PAMatrixReader without touching disk.
type fakeMatrixSource struct {
	rows []merger.Row
	pos  int
}

func (f *fakeMatrixSource) Next() (merger.Row, bool, error) {
	if f.pos >= len(f.rows) {
		return merger.Row{}, false, nil
	}
	r := f.rows[f.pos]
	f.pos++
	return r, true, nil
}

// recordingProcessor collects every row Process is called with, standing in
// for a merger.RowProcessor writer.
type recordingProcessor struct {
	rows []merger.Row
}

func (p *recordingProcessor) Process(row merger.Row) error {
	p.rows = append(p.rows, row)
	return nil
}

func (p *recordingProcessor) Close() error { return nil }

func writeHashSample(t *testing.T, path string, entries []counter.Entry) {
	t.Helper()
	w, err := counter.Create(path, rundir.KmerFileHeader{
		KeyWidth: 8, CountWidth: 1, K: 8, IsHashes: true,
	})
	expect.NoError(t, err)
	for _, e := range entries {
		expect.NoError(t, w.WriteEntry(e))
	}
	expect.NoError(t, w.Close())
}

func TestFilterKeepsOnlyRowsPresentInNewSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "newsample")
	writeHashSample(t, path, []counter.Entry{
		{Key: uint64(10), Count: 4},
		{Key: uint64(30), Count: 1},
	})
	newSample, err := counter.Open(path)
	expect.NoError(t, err)
	defer newSample.Close()

	matrix := &fakeMatrixSource{rows: []merger.Row{
		{Key: uint64(10), Values: []uint64{1, 2}},
		{Key: uint64(20), Values: []uint64{3, 4}},
		{Key: uint64(30), Values: []uint64{5, 6}},
	}}

	proc := &recordingProcessor{}
	expect.NoError(t, Filter(matrix, newSample, merger.HashOrder, false, proc))

	expect.EQ(t, len(proc.rows), 2)
	expect.EQ(t, proc.rows[0].Key.(uint64), uint64(10))
	expect.EQ(t, proc.rows[1].Key.(uint64), uint64(30))
}

func TestFilterAppendsNewSampleColumnWhenRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "newsample")
	writeHashSample(t, path, []counter.Entry{
		{Key: uint64(10), Count: 7},
	})
	newSample, err := counter.Open(path)
	expect.NoError(t, err)
	defer newSample.Close()

	matrix := &fakeMatrixSource{rows: []merger.Row{
		{Key: uint64(10), Values: []uint64{1, 2}},
	}}

	proc := &recordingProcessor{}
	expect.NoError(t, Filter(matrix, newSample, merger.HashOrder, true, proc))

	expect.EQ(t, len(proc.rows), 1)
	expect.EQ(t, proc.rows[0].Values, []uint64{1, 2, 7})
}

func TestFilterDropsEverythingWhenNewSampleEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "newsample")
	writeHashSample(t, path, nil)
	newSample, err := counter.Open(path)
	expect.NoError(t, err)
	defer newSample.Close()

	matrix := &fakeMatrixSource{rows: []merger.Row{
		{Key: uint64(10), Values: []uint64{1}},
		{Key: uint64(20), Values: []uint64{2}},
	}}

	proc := &recordingProcessor{}
	expect.NoError(t, Filter(matrix, newSample, merger.HashOrder, false, proc))
	expect.EQ(t, len(proc.rows), 0)
}
