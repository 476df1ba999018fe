package counter

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestWriteReadVectorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p2.vec")
	// partition 2, window [200,300): hashes 205 and 299 fall inside, 50 outside.
	expect.NoError(t, WriteVector(path, 2, 100, []uint64{205, 299, 50}))

	hdr, bits, err := ReadVector(path)
	expect.NoError(t, err)
	expect.EQ(t, hdr.PartitionID, uint16(2))
	expect.EQ(t, hdr.NbBits, uint64(100))
	expect.True(t, bits[5/8]&(1<<(5%8)) != 0)   // local pos 5 (=205-200)
	expect.True(t, bits[99/8]&(1<<(99%8)) != 0) // local pos 99 (=299-200)
}
