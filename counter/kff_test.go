package counter

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/kmtricks/kmtricks-go/rundir"
)

func TestKffWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p0.kff")

	kw, err := CreateKff(path, rundir.KffFileHeader{PartitionID: 0, K: 4, CountWidth: 4})
	expect.NoError(t, err)
	expect.NoError(t, kw.WriteRecord("ACGTAC", []uint64{3, 7, 1}))
	expect.NoError(t, kw.WriteRecord("TTTTT", []uint64{0, 5}))
	expect.NoError(t, kw.Close())

	kr, err := OpenKff(path)
	expect.NoError(t, err)
	defer kr.Close()
	expect.EQ(t, kr.Header.K, uint8(4))

	seq, counts, ok, err := kr.Next()
	expect.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, seq, "ACGTAC")
	expect.EQ(t, len(counts), 3)
	expect.EQ(t, counts[0], uint64(3))
	expect.EQ(t, counts[1], uint64(7))
	expect.EQ(t, counts[2], uint64(1))

	seq, counts, ok, err = kr.Next()
	expect.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, seq, "TTTTT")
	expect.EQ(t, counts[0], uint64(0))
	expect.EQ(t, counts[1], uint64(5))

	_, _, ok, err = kr.Next()
	expect.NoError(t, err)
	expect.False(t, ok)
}

func TestKffRecordLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.kff")
	kw, err := CreateKff(path, rundir.KffFileHeader{PartitionID: 0, K: 4, CountWidth: 1})
	expect.NoError(t, err)
	defer kw.Close()
	err = kw.WriteRecord("ACGTAC", []uint64{1}) // 3 positions expected, got 1
	expect.HasSubstr(t, err.Error(), "kff record")
}
