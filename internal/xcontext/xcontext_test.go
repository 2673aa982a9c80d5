package xcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
)

func withFakeClock(t *testing.T) *fakeclock.FakeClock {
	t.Helper()
	fc := fakeclock.NewFakeClock(time.Unix(0, 0))
	old := clk
	clk = fc
	t.Cleanup(func() { clk = old })
	return fc
}

func TestWithCancelCustomError(t *testing.T) {
	ctx, cancel := WithCancel(context.Background())
	myErr := errors.New("custom")

	done := make(chan struct{})
	go func() {
		cancel(myErr)
		close(done)
	}()
	<-ctx.Done()
	<-done

	if ctx.Err() != myErr {
		t.Errorf("Err = %v, want %v", ctx.Err(), myErr)
	}
}

func TestWithGracePeriodExpires(t *testing.T) {
	fc := withFakeClock(t)
	ctx, cancel := WithGracePeriod(context.Background(), 5*time.Second)
	defer cancel(errors.New("unused"))

	fc.WaitForWatcherAndIncrement(6 * time.Second)
	<-ctx.Done()

	if ctx.Err() != ErrGracePeriodExpired {
		t.Errorf("Err = %v, want ErrGracePeriodExpired", ctx.Err())
	}
}

func TestWithGracePeriodCompletesFirst(t *testing.T) {
	withFakeClock(t)
	ctx, cancel := WithGracePeriod(context.Background(), 5*time.Second)
	myErr := errors.New("completed normally")

	done := make(chan struct{})
	go func() {
		cancel(myErr)
		close(done)
	}()
	<-ctx.Done()
	<-done

	if ctx.Err() != myErr {
		t.Errorf("Err = %v, want %v", ctx.Err(), myErr)
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	ctx, cancel := WithCancel(parent)
	defer cancel(errors.New("unused"))

	parentCancel()
	<-ctx.Done()

	if ctx.Err() != context.Canceled {
		t.Errorf("Err = %v, want context.Canceled", ctx.Err())
	}
}
