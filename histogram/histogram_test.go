package histogram

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestAddBucketsInRange(t *testing.T) {
	h := New(1, 21, 1, 10)
	h.Add(3)
	h.Add(3)
	h.Add(5)
	expect.EQ(t, h.UniqAt(3), uint64(2))
	expect.EQ(t, h.UniqAt(5), uint64(1))
	expect.EQ(t, h.UniqTotal(), uint64(3))
	expect.EQ(t, h.OccTotal(), uint64(3+3+5))
}

func TestAddFoldsOutOfBand(t *testing.T) {
	h := New(1, 21, 2, 10)
	h.Add(1)  // below lower
	h.Add(50) // at/above upper
	expect.EQ(t, h.OOBLowUniq, uint64(1))
	expect.EQ(t, h.OOBHighUniq, uint64(1))
	expect.EQ(t, h.UniqTotal(), uint64(2))
}

func TestMergeSumsBuckets(t *testing.T) {
	a := New(1, 21, 1, 10)
	a.Add(3)
	b := New(1, 21, 1, 10)
	b.Add(3)
	b.Add(4)
	expect.NoError(t, a.Merge(b))
	expect.EQ(t, a.UniqAt(3), uint64(2))
	expect.EQ(t, a.UniqAt(4), uint64(1))
}

func TestMergeRejectsRangeMismatch(t *testing.T) {
	a := New(1, 21, 1, 10)
	b := New(1, 21, 1, 20)
	expect.NotNil(t, a.Merge(b))
}

func TestQuantileFindsMedian(t *testing.T) {
	h := New(1, 21, 1, 100)
	for i := 0; i < 5; i++ {
		h.Add(2)
	}
	for i := 0; i < 5; i++ {
		h.Add(8)
	}
	q := h.Quantile(0.5)
	expect.EQ(t, q, uint32(2))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	h := New(7, 31, 1, 50)
	h.Add(3)
	h.Add(3)
	h.Add(40)
	h.OOBLowUniq = 2

	path := filepath.Join(dir, "s7.hist")
	expect.NoError(t, h.Save(path))

	got, err := Load(path)
	expect.NoError(t, err)
	expect.EQ(t, got.SampleID, h.SampleID)
	expect.EQ(t, got.UniqTotal(), h.UniqTotal())
	expect.EQ(t, got.OccTotal(), h.OccTotal())
	expect.EQ(t, got.UniqAt(3), uint64(2))
}
