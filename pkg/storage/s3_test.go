package storage

import (
	"testing"
	"time"
)

func TestResultKey(t *testing.T) {
	at := time.Unix(1767225600, 0)
	if got, want := ResultKey(12, at), "results/12/lottery-1767225600.json"; got != want {
		t.Fatalf("ResultKey = %q, want %q", got, want)
	}
}
