package xsignal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grailbio/testutil/expect"
)

func TestTokenStartsUncancelled(t *testing.T) {
	tok := New()
	expect.False(t, tok.Cancelled())
	expect.Nil(t, tok.Err())
}

func TestCancelSetsErrAndCancelled(t *testing.T) {
	tok := New()
	want := errors.New("boom")
	tok.Cancel(want)
	expect.True(t, tok.Cancelled())
	expect.EQ(t, tok.Err(), want)
}

func TestCancelIsIdempotent(t *testing.T) {
	tok := New()
	tok.Cancel(errors.New("first"))
	tok.Cancel(errors.New("second"))
	expect.EQ(t, tok.Err().Error(), "first")
}

func TestWithContextCancelsOnToken(t *testing.T) {
	tok := New()
	ctx, cancel := tok.WithContext(context.Background())
	defer cancel()

	tok.Cancel(errors.New("stop"))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}
