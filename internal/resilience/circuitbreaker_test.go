package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *clock, *[]State) {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)}
	var transitions []State
	cfg.Now = c.Now
	cfg.OnStateChange = func(_ string, _, to State) { transitions = append(transitions, to) }
	return NewCircuitBreaker(cfg), c, &transitions
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()
	cb, _, transitions := newBreaker(t, CircuitBreakerConfig{MaxFailures: 3})

	for i := range 3 {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker err = %v", err)
	}
	if called {
		t.Error("fn ran while open")
	}
	if len(*transitions) != 1 || (*transitions)[0] != StateOpen {
		t.Errorf("transitions = %v", *transitions)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()
	cb, _, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 2})
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{name: "probe succeeds", wantState: StateClosed},
		{name: "probe fails", probeErr: errBoom, wantState: StateOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cb, clk, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
			_ = cb.Execute(func() error { return errBoom })
			clk.Advance(59 * time.Second)
			if cb.State() != StateOpen {
				t.Fatalf("State before timeout = %v", cb.State())
			}
			clk.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("State after timeout = %v", cb.State())
			}
			_ = cb.Execute(func() error { return tc.probeErr })
			if cb.State() != tc.wantState {
				t.Errorf("State after probe = %v, want %v", cb.State(), tc.wantState)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	cb, clk, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	_ = cb.Execute(func() error { return errBoom })
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error { close(started); <-release; return nil })
	}()
	<-started
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoredErrorsDoNotCount(t *testing.T) {
	t.Parallel()
	cb, _, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1})
	ignore := func(error) bool { return true }
	if err := cb.execute(func() error { return errBoom }, ignore); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _, transitions := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(func() error { return errBoom })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State = %v", cb.State())
	}
	want := []State{StateOpen, StateClosed}
	if len(*transitions) != 2 || (*transitions)[0] != want[0] || (*transitions)[1] != want[1] {
		t.Errorf("transitions = %v, want %v", *transitions, want)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
