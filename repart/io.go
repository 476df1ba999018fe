package repart

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// magicNumber is the trailer value every repartition (and, when present,
// frequency-order) file ends with, matching the 0x12345678 sentinel used
// by the original repartition file format.
const magicNumber = uint32(0x12345678)

// Save writes the table to path: nb_part, nb_minims, nb_pass, the table
// itself, a has-freq-order flag, then the magic trailer. When Mode is
// Frequency and FreqOrder is non-nil, the permutation is written to
// freqPath as its own []uint32 followed by the same trailer.
func Save(path, freqPath string, t *Table) (err error) {
	ctx := vcontext.Background()
	var w file.File
	if w, err = file.Create(ctx, path); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, w, &err)

	wr := w.Writer(ctx)
	if err = binary.Write(wr, binary.LittleEndian, t.P); err != nil {
		return err
	}
	if err = binary.Write(wr, binary.LittleEndian, uint64(t.Len())); err != nil {
		return err
	}
	if err = binary.Write(wr, binary.LittleEndian, t.Pass); err != nil {
		return err
	}
	if err = binary.Write(wr, binary.LittleEndian, t.table); err != nil {
		return err
	}
	hasFreq := t.Mode == Frequency && t.FreqOrder != nil
	if err = binary.Write(wr, binary.LittleEndian, hasFreq); err != nil {
		return err
	}
	if err = binary.Write(wr, binary.LittleEndian, magicNumber); err != nil {
		return err
	}
	if !hasFreq {
		return nil
	}

	var fw file.File
	if fw, err = file.Create(ctx, freqPath); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, fw, &err)
	fwr := fw.Writer(ctx)
	if err = binary.Write(fwr, binary.LittleEndian, t.FreqOrder); err != nil {
		return err
	}
	return binary.Write(fwr, binary.LittleEndian, magicNumber)
}

// Load reads a table previously written by Save. freqPath may be empty; if
// the table was saved with a frequency order and freqPath is non-empty, the
// permutation is loaded too.
func Load(path, freqPath string) (t *Table, err error) {
	ctx := vcontext.Background()
	var r file.File
	if r, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, r, &err)

	rd := r.Reader(ctx)
	t = &Table{}
	if err = binary.Read(rd, binary.LittleEndian, &t.P); err != nil {
		return nil, err
	}
	var nbMinims uint64
	if err = binary.Read(rd, binary.LittleEndian, &nbMinims); err != nil {
		return nil, err
	}
	if err = binary.Read(rd, binary.LittleEndian, &t.Pass); err != nil {
		return nil, err
	}
	if nbMinims > 1<<30 { // 4^15, the largest table NewTable builds
		return nil, fmt.Errorf("repart: bad table size %d in %s, possibly corrupt or wrong format", nbMinims, path)
	}
	t.table = make([]uint16, nbMinims)
	if err = binary.Read(rd, binary.LittleEndian, t.table); err != nil {
		return nil, err
	}
	var hasFreq bool
	if err = binary.Read(rd, binary.LittleEndian, &hasFreq); err != nil {
		return nil, err
	}
	var magic uint32
	if err = binary.Read(rd, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("repart: bad magic in %s, possibly corrupt or wrong format", path)
	}
	if hasFreq {
		t.Mode = Frequency
	}
	t.M = mFromSize(len(t.table))

	if !hasFreq || freqPath == "" {
		return t, nil
	}
	var fr file.File
	if fr, err = file.Open(ctx, freqPath); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, fr, &err)
	frd := fr.Reader(ctx)
	t.FreqOrder = make([]uint32, nbMinims)
	if err = binary.Read(frd, binary.LittleEndian, t.FreqOrder); err != nil {
		return nil, err
	}
	var fmagic uint32
	if err = binary.Read(frd, binary.LittleEndian, &fmagic); err != nil {
		return nil, err
	}
	if fmagic != magicNumber {
		return nil, fmt.Errorf("repart: bad magic in %s, possibly corrupt or wrong format", freqPath)
	}
	return t, nil
}

// mFromSize recovers m from a table length of 4^m, used when loading a
// table whose header carries only the flat length.
func mFromSize(n int) int {
	m := 0
	for 1<<uint(2*m) < n {
		m++
	}
	return m
}
