package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"classroom-lock/client/internal/reachability"
)

func TestWaitWithProgress_ReportsAttempts(t *testing.T) {
	monitor := reachability.NewMonitor(reachability.ProberFunc(func(context.Context) bool { return false }))
	validated := make(chan struct{})
	go func() {
		defer close(validated)
		monitor.WaitForConnectivity(context.Background(), 1200*time.Millisecond, 300*time.Millisecond)
	}()

	prev := current
	current = &app{monitor: monitor, validated: validated}
	defer func() { current = prev }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	waitWithProgress(ctx, &out)

	select {
	case <-validated:
	default:
		t.Fatal("waitWithProgress returned before validation finished")
	}
	if !strings.Contains(out.String(), "Waiting for the MDM API (attempt 1)") {
		t.Errorf("output = %q, want attempt progress", out.String())
	}
}

func TestWaitWithProgress_NoValidation(t *testing.T) {
	prev := current
	current = &app{}
	defer func() { current = prev }()

	var out bytes.Buffer
	waitWithProgress(context.Background(), &out)
	if out.Len() != 0 {
		t.Errorf("output = %q, want none", out.String())
	}
}
