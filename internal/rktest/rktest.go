// Package rktest contains helpers shared across regka tests.
package rktest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

// ScaleDuration is the multiplier applied to the short timeouts
// in [ReceiveSoon] and [NotSending].
// Raise it when running under the race detector on slow machines.
var ScaleDuration = 1

// NewLogger returns a logger that writes through t.Log,
// so output is only shown for failing or verbose tests.
func NewLogger(t *testing.T) *slog.Logger {
	return slogt.New(t)
}

// ReceiveSoon receives from ch, failing the test
// if no value arrives within a short timeout.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(time.Duration(ScaleDuration) * time.Second)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("did not receive value within %s", time.Duration(ScaleDuration)*time.Second)
	}

	panic("unreachable")
}

// NotSending fails the test if ch is ready to receive
// within a brief delay.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(time.Duration(ScaleDuration) * 10 * time.Millisecond)
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, got %v", v)
	case <-timer.C:
	}
}
