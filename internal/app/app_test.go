package app

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "telepal/pkg/logx"
)

func TestStepRunsAndBounds(t *testing.T) {
	a := &App{log: logx.Nop()}

	ran := false
	a.step(context.Background(), "quick", time.Second, func(context.Context) error {
		ran = true
		return errors.New("ignored")
	})
	if !ran {
		t.Fatal("step did not run fn")
	}

	start := time.Now()
	a.step(context.Background(), "slow", 50*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("step was not bounded: took %s", took)
	}

	a.step(context.Background(), "panics", time.Second, func(context.Context) error {
		panic("boom")
	})
}

func TestSystemdIsNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	a := &App{log: logx.Nop()}
	notifyReady(a.log)
	notifyStopping(a.log)

	done := make(chan struct{})
	go func() {
		a.watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog should return immediately when disabled")
	}
}

func TestStopBeforeStart(t *testing.T) {
	a := &App{log: logx.Nop()}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed for an app that never started")
	}
}
