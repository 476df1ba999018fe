package rundir

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestParseFofBasic(t *testing.T) {
	in := `
sampleA : reads_1.fq ; reads_2.fq
sampleB : reads.fq ! 3

`
	samples, err := ParseFof(strings.NewReader(in))
	expect.NoError(t, err)
	expect.EQ(t, len(samples), 2)
	expect.EQ(t, samples[0].ID, "sampleA")
	expect.EQ(t, len(samples[0].Files), 2)
	expect.EQ(t, samples[0].MinAbundance, 0)
	expect.EQ(t, samples[1].ID, "sampleB")
	expect.EQ(t, samples[1].MinAbundance, 3)
}

func TestParseFofRejectsMissingColon(t *testing.T) {
	_, err := ParseFof(strings.NewReader("sampleA reads.fq"))
	expect.NotNil(t, err)
}

func TestParseFofRejectsEmptyFiles(t *testing.T) {
	_, err := ParseFof(strings.NewReader("sampleA :"))
	expect.NotNil(t, err)
}

func TestKmerFileHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := KmerFileHeader{KeyWidth: 8, CountWidth: 2, SampleID: 3, PartitionID: 7, K: 31, Compressed: true, IsHashes: false}
	expect.NoError(t, h.Write(&buf))
	got, err := ReadKmerFileHeader(&buf)
	expect.NoError(t, err)
	expect.EQ(t, got, h)
}

func TestKmerFileHeaderRejectsWrongType(t *testing.T) {
	var buf bytes.Buffer
	h := BitVectorFileHeader{PartitionID: 1, Bytes: 128, NbBits: 1024, Compressed: false}
	expect.NoError(t, h.Write(&buf))
	_, err := ReadKmerFileHeader(&buf)
	expect.NotNil(t, err)
}

func TestHistFileHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := HistFileHeader{SampleID: 2, K: 21, Lower: 1, Upper: 200, UniqTotal: 1000, OccTotal: 50000}
	expect.NoError(t, h.Write(&buf))
	got, err := ReadHistFileHeader(&buf)
	expect.NoError(t, err)
	expect.EQ(t, got, h)
}

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{K: 21, M: 10, P: 8, MinimizerType: 1, RepartitionType: 0, Encoding: "ACTG-2bit"}
	samples := []Sample{{ID: "s1", Files: []string{"a.fq"}}}
	m := NewManifest(cfg, samples)
	m.MarkDone("repart")

	expect.NoError(t, m.Save(dir))
	got, err := LoadManifest(dir)
	expect.NoError(t, err)
	expect.EQ(t, got.Config, m.Config)
	expect.EQ(t, len(got.Samples), 1)
	expect.True(t, got.IsDone("repart"))
	expect.False(t, got.IsDone("merge"))
}

func TestConfigCompatible(t *testing.T) {
	a := Config{K: 21, M: 10, P: 8}
	b := Config{K: 21, M: 10, P: 8, Encoding: "different"}
	c := Config{K: 31, M: 10, P: 8}
	expect.True(t, a.Compatible(b))
	expect.False(t, a.Compatible(c))
}

func TestLayoutDirsUnderRunDir(t *testing.T) {
	dirs := Layout("/tmp/run1")
	expect.EQ(t, len(dirs), 5)
	expect.EQ(t, dirs[0], filepath.Join("/tmp/run1", SuperKDir))
}
