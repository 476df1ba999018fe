// Package rundir implements the run directory layout: the JSON manifest,
// the input file-of-files parser, and the generic binary file header
// shared by every persisted file (super-k-mer store aside, which has its
// own block-oriented header inside package skio).
package rundir

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic1/magic2 bracket every header: magic1 identifies the file as one of
// ours at all, magic2 sits at the end of the header so a reader can detect
// a truncated or drifted header before trusting any of the fields between
// them.
const (
	magic1 = uint64(0x6b6d74726b5f3031) // "kmtrk_01" ASCII, arbitrary but fixed
	magic2 = uint64(0x5f30315f6b6d7472) // rotated form of magic1
)

// FileType discriminates which concrete header follows magic1.
type FileType uint8

const (
	FileTypeKmer FileType = iota
	FileTypeHash
	FileTypeCountMatrix
	FileTypePAMatrix
	FileTypeBitVector
	FileTypeBitMatrix
	FileTypeHist
	FileTypeBloom
	FileTypeKff
)

// writeHeader writes magic1, the discriminant, every field in order, then
// magic2.
func writeHeader(w io.Writer, ft FileType, fields ...interface{}) error {
	if err := binary.Write(w, binary.LittleEndian, magic1); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ft); err != nil {
		return err
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, magic2)
}

// readHeader reads and validates magic1, returns the discriminant, reads
// every field in order, then validates magic2.
func readHeader(r io.Reader, fields ...interface{}) (FileType, error) {
	var m1 uint64
	if err := binary.Read(r, binary.LittleEndian, &m1); err != nil {
		return 0, err
	}
	if m1 != magic1 {
		return 0, fmt.Errorf("rundir: bad leading magic, not a kmtricks-go file or truncated")
	}
	var ft FileType
	if err := binary.Read(r, binary.LittleEndian, &ft); err != nil {
		return 0, err
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return 0, err
		}
	}
	var m2 uint64
	if err := binary.Read(r, binary.LittleEndian, &m2); err != nil {
		return 0, err
	}
	if m2 != magic2 {
		return 0, fmt.Errorf("rundir: bad trailing magic, header truncated or format drifted")
	}
	return ft, nil
}

// KmerFileHeader precedes a stream of (key, count) pairs, for both kmer-
// keyed and hash-keyed count files.
type KmerFileHeader struct {
	KeyWidth    uint8 // 8 (Width64) or 16 (Width128) bytes per key
	CountWidth  uint8 // 1, 2, or 4 bytes per saturated count
	SampleID    uint32
	PartitionID uint16
	K           uint8
	Compressed  bool
	IsHashes    bool
}

func (h KmerFileHeader) Write(w io.Writer) error {
	ft := FileTypeKmer
	if h.IsHashes {
		ft = FileTypeHash
	}
	return writeHeader(w, ft, h.KeyWidth, h.CountWidth, h.SampleID, h.PartitionID, h.K, h.Compressed, h.IsHashes)
}

func ReadKmerFileHeader(r io.Reader) (KmerFileHeader, error) {
	var h KmerFileHeader
	ft, err := readHeader(r, &h.KeyWidth, &h.CountWidth, &h.SampleID, &h.PartitionID, &h.K, &h.Compressed, &h.IsHashes)
	if err != nil {
		return h, err
	}
	if ft != FileTypeKmer && ft != FileTypeHash {
		return h, fmt.Errorf("rundir: expected kmer or hash file, got type %d", ft)
	}
	return h, nil
}

// CountMatrixFileHeader precedes a "count" mode matrix row stream.
type CountMatrixFileHeader struct {
	KmerFileHeader
	MatrixType uint8
	NbCounts   uint32 // N, number of sample columns
}

func (h CountMatrixFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeCountMatrix, h.KeyWidth, h.CountWidth, h.SampleID, h.PartitionID, h.K,
		h.Compressed, h.IsHashes, h.MatrixType, h.NbCounts)
}

func ReadCountMatrixFileHeader(r io.Reader) (CountMatrixFileHeader, error) {
	var h CountMatrixFileHeader
	ft, err := readHeader(r, &h.KeyWidth, &h.CountWidth, &h.SampleID, &h.PartitionID, &h.K,
		&h.Compressed, &h.IsHashes, &h.MatrixType, &h.NbCounts)
	if err != nil {
		return h, err
	}
	if ft != FileTypeCountMatrix {
		return h, fmt.Errorf("rundir: expected count-matrix file, got type %d", ft)
	}
	return h, nil
}

// PAMatrixFileHeader precedes a "pa" (presence/absence) mode matrix row
// stream: one bit per sample instead of a saturated count.
type PAMatrixFileHeader struct {
	KmerFileHeader
	BitsInUse uint32 // N, number of sample columns in use
	RowBytes  uint32 // ceil(N/8)
}

func (h PAMatrixFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypePAMatrix, h.KeyWidth, h.CountWidth, h.SampleID, h.PartitionID, h.K,
		h.Compressed, h.IsHashes, h.BitsInUse, h.RowBytes)
}

func ReadPAMatrixFileHeader(r io.Reader) (PAMatrixFileHeader, error) {
	var h PAMatrixFileHeader
	ft, err := readHeader(r, &h.KeyWidth, &h.CountWidth, &h.SampleID, &h.PartitionID, &h.K,
		&h.Compressed, &h.IsHashes, &h.BitsInUse, &h.RowBytes)
	if err != nil {
		return h, err
	}
	if ft != FileTypePAMatrix {
		return h, fmt.Errorf("rundir: expected pa-matrix file, got type %d", ft)
	}
	return h, nil
}

// BitVectorFileHeader precedes one partition's slice of a per-sample Bloom
// filter (the bf/bft hash-window projection).
type BitVectorFileHeader struct {
	PartitionID uint16
	Bytes       uint64
	NbBits      uint64
	Compressed  bool
}

func (h BitVectorFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeBitVector, h.PartitionID, h.Bytes, h.NbBits, h.Compressed)
}

func ReadBitVectorFileHeader(r io.Reader) (BitVectorFileHeader, error) {
	var h BitVectorFileHeader
	ft, err := readHeader(r, &h.PartitionID, &h.Bytes, &h.NbBits, &h.Compressed)
	if err != nil {
		return h, err
	}
	if ft != FileTypeBitVector {
		return h, fmt.Errorf("rundir: expected bit-vector file, got type %d", ft)
	}
	return h, nil
}

// BitMatrixFileHeader precedes a bf/bft/bfc mode matrix, dense over a
// padded number of rows/columns for word-aligned access.
type BitMatrixFileHeader struct {
	MatrixType    uint8
	PartitionID   uint16
	NbRowsPadded  uint64
	NbColsPadded  uint64
	RowBytes      uint64
	Compressed    bool
}

func (h BitMatrixFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeBitMatrix, h.MatrixType, h.PartitionID, h.NbRowsPadded, h.NbColsPadded,
		h.RowBytes, h.Compressed)
}

func ReadBitMatrixFileHeader(r io.Reader) (BitMatrixFileHeader, error) {
	var h BitMatrixFileHeader
	ft, err := readHeader(r, &h.MatrixType, &h.PartitionID, &h.NbRowsPadded, &h.NbColsPadded, &h.RowBytes, &h.Compressed)
	if err != nil {
		return h, err
	}
	if ft != FileTypeBitMatrix {
		return h, fmt.Errorf("rundir: expected bit-matrix file, got type %d", ft)
	}
	return h, nil
}

// HistFileHeader precedes one sample's abundance histogram: two dense
// uint64 arrays (unique-kmer counts and total-occurrence counts per
// abundance bucket) plus out-of-band totals below lower/above upper.
type HistFileHeader struct {
	SampleID uint32
	K        uint8
	Lower    uint32
	Upper    uint32
	UniqTotal uint64
	OccTotal  uint64
}

func (h HistFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeHist, h.SampleID, h.K, h.Lower, h.Upper, h.UniqTotal, h.OccTotal)
}

func ReadHistFileHeader(r io.Reader) (HistFileHeader, error) {
	var h HistFileHeader
	ft, err := readHeader(r, &h.SampleID, &h.K, &h.Lower, &h.Upper, &h.UniqTotal, &h.OccTotal)
	if err != nil {
		return h, err
	}
	if ft != FileTypeHist {
		return h, fmt.Errorf("rundir: expected histogram file, got type %d", ft)
	}
	return h, nil
}

// BloomFileHeader precedes a sample's final, projected Bloom filter
// (package bloom's §4.7 output): one dense bit-vector of NbBits bits,
// concatenated in partition order across all P partitions' bf/bft/vector
// windows, in a format external Bloom-filter/search-tree tools can treat
// as a classic Bloom filter.
type BloomFileHeader struct {
	SampleID uint32
	NbBits   uint64
	Bytes    uint64
}

func (h BloomFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeBloom, h.SampleID, h.NbBits, h.Bytes)
}

func ReadBloomFileHeader(r io.Reader) (BloomFileHeader, error) {
	var h BloomFileHeader
	ft, err := readHeader(r, &h.SampleID, &h.NbBits, &h.Bytes)
	if err != nil {
		return h, err
	}
	if ft != FileTypeBloom {
		return h, fmt.Errorf("rundir: expected bloom filter file, got type %d", ft)
	}
	return h, nil
}

// KffFileHeader precedes one (sample, partition)'s "kff" output of spec.md
// §4.5: a stream of records, each a skio-encoded compacted super-k-mer
// followed by one saturated count per k-mer position it spans (its
// abundance data stream), minimizer-grouped by construction since a
// partition's super-k-mers already share a minimizer.
type KffFileHeader struct {
	SampleID    uint32
	PartitionID uint16
	K           uint8
	CountWidth  uint8 // 1, 2, or 4 bytes per abundance value
	Compressed  bool
}

func (h KffFileHeader) Write(w io.Writer) error {
	return writeHeader(w, FileTypeKff, h.SampleID, h.PartitionID, h.K, h.CountWidth, h.Compressed)
}

func ReadKffFileHeader(r io.Reader) (KffFileHeader, error) {
	var h KffFileHeader
	ft, err := readHeader(r, &h.SampleID, &h.PartitionID, &h.K, &h.CountWidth, &h.Compressed)
	if err != nil {
		return h, err
	}
	if ft != FileTypeKff {
		return h, fmt.Errorf("rundir: expected kff file, got type %d", ft)
	}
	return h, nil
}
