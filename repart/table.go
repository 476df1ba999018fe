// Package repart builds and serializes the repartition table: the
// minimizer-value to partition-id map shared read-only by every later
// pipeline stage, including repart-from reuse across runs.
package repart

import "fmt"

// Mode selects how m-mer values are assigned to partitions.
type Mode uint8

const (
	// Lexicographic assigns contiguous ranges of m-mer values to
	// partitions, balanced by observed count rather than by value.
	Lexicographic Mode = 0
	// Frequency assigns rarer m-mers to separate partitions so the
	// largest partitions stay under a memory budget.
	Frequency Mode = 1
)

func (m Mode) String() string {
	if m == Frequency {
		return "frequency"
	}
	return "lexicographic"
}

// Table is the minimizer -> partition map: a flat array of length 4^M,
// indexed by canonical m-mer value.
type Table struct {
	P     uint16
	M     int
	Mode  Mode
	Pass  uint16 // number of repartition passes, fixed at 1 for kmtricks-go
	table []uint16

	// FreqOrder holds, when Mode == Frequency, the rank permutation used to
	// build the table (FreqOrder[r] = the m-mer value of observed-frequency
	// rank r, rarest first). It is persisted alongside the table so a later
	// repart-from run can reproduce identical partition assignments without
	// re-sampling the input.
	FreqOrder []uint32
}

// NewTable allocates an empty table of the given shape; Build fills it in.
func NewTable(p, m int, mode Mode) *Table {
	if p <= 0 || p > 1<<16-1 {
		panic(fmt.Sprintf("repart: invalid partition count %d", p))
	}
	if m < 4 || m > 15 {
		panic(fmt.Sprintf("repart: invalid m-mer size %d", m))
	}
	return &Table{
		P:     uint16(p),
		M:     m,
		Mode:  mode,
		Pass:  1,
		table: make([]uint16, size(m)),
	}
}

func size(m int) int { return 1 << uint(2*m) }

// Get returns the partition assigned to minimizer value v.
func (t *Table) Get(v uint32) uint16 { return t.table[v] }

// Set assigns minimizer value v to partition p; used only by Build.
func (t *Table) Set(v uint32, p uint16) { t.table[v] = p }

// Len returns 4^M, the number of minimizer values this table covers.
func (t *Table) Len() int { return len(t.table) }
