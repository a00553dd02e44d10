package control

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckWallTime(t *testing.T) {
	p := Policy{TurnWallTime: 2 * time.Second}
	start := time.Unix(100, 0)
	if err := CheckWallTime(p, start, start.Add(1*time.Second)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	err := CheckWallTime(p, start, start.Add(3*time.Second))
	if err == nil {
		t.Fatal("expected wall-time limit error")
	}
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if limitErr.Type != LimitWallTime || limitErr.Value != 3 || limitErr.Threshold != 2 {
		t.Fatalf("unexpected limit error: %+v", limitErr)
	}
}

func TestCheckWallTime_Disabled(t *testing.T) {
	start := time.Unix(100, 0)
	if err := CheckWallTime(Policy{}, start, start.Add(time.Hour)); err != nil {
		t.Fatalf("expected no limit with zero wall time, got %v", err)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.FetchTimeout <= 0 || p.DocumentTimeout <= 0 || p.CompletionTimeout <= 0 || p.TurnWallTime <= 0 {
		t.Fatalf("expected all default timeouts to be positive: %+v", p)
	}
	if p.TurnWallTime < p.CompletionTimeout {
		t.Fatalf("turn wall time %s shorter than completion timeout %s", p.TurnWallTime, p.CompletionTimeout)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("expected no deadline for zero duration")
	}

	ctx2, cancel2 := WithTimeout(context.Background(), time.Minute)
	defer cancel2()
	if _, ok := ctx2.Deadline(); !ok {
		t.Fatal("expected deadline for positive duration")
	}
}
