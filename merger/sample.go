package merger

import (
	"os"

	"github.com/kmtricks/kmtricks-go/counter"
)

// SampleStream is one sample's sorted (key, count) stream for a single
// partition, as produced by counter.Writer. A SampleStream with no
// backing file behaves as a permanently-exhausted empty stream, per
// spec.md §4.6's "a missing count file for one sample in one partition is
// treated as an empty stream; the merger must not fail".
type SampleStream struct {
	SampleIndex int // column this sample occupies in Row.Values

	r        *counter.Reader
	cur      counter.Entry
	haveCur  bool
	exhausted bool
}

// OpenSampleStream opens path as a sample's count file for sampleIndex. If
// path does not exist, OpenSampleStream returns a stream that reports
// itself exhausted immediately rather than an error, matching the "missing
// file is an empty stream" failure semantics; any other error (e.g. a
// malformed header) is returned, matching "a malformed header aborts the
// partition's merge with a fatal error".
func OpenSampleStream(path string, sampleIndex int) (*SampleStream, error) {
	s := &SampleStream{SampleIndex: sampleIndex}
	r, err := counter.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.exhausted = true
			return s, nil
		}
		return nil, err
	}
	s.r = r
	if err := s.advance(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SampleStream) advance() error {
	if s.r == nil {
		s.exhausted = true
		return nil
	}
	e, ok, err := s.r.Next()
	if err != nil {
		return err
	}
	if !ok {
		s.exhausted = true
		s.haveCur = false
		return nil
	}
	s.cur, s.haveCur = e, true
	return nil
}

// Peek returns the current head entry, if any.
func (s *SampleStream) Peek() (counter.Entry, bool) { return s.cur, s.haveCur }

// Exhausted reports whether the stream has no further entries.
func (s *SampleStream) Exhausted() bool { return s.exhausted }

// Advance consumes the current head entry and reads the next one.
func (s *SampleStream) Advance() error { return s.advance() }

// Close releases the underlying file, if any was opened.
func (s *SampleStream) Close() error {
	if s.r == nil {
		return nil
	}
	return s.r.Close()
}
