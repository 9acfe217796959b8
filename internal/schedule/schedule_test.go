package schedule

import (
	"testing"
	"time"

	"github.com/relabs-tech/stratus_logger/internal/clock"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func intervals() Intervals {
	var iv Intervals
	iv[Battery] = 5 * time.Second
	iv[Environment] = 3 * time.Second
	iv[Magnetometer] = time.Second
	iv[Status] = time.Second
	return iv
}

func TestDueFiresAtInterval(t *testing.T) {
	s := New(clock.NewStepper(t0), 100, intervals())
	s.Start(t0)

	if d := s.Due(t0); !d.Empty() {
		t.Fatalf("tasks due at start: %b", d)
	}
	if d := s.Due(t0.Add(999 * time.Millisecond)); d.Has(Magnetometer) {
		t.Fatal("magnetometer due before its interval")
	}

	d := s.Due(t0.Add(time.Second))
	if !d.Has(Magnetometer) || !d.Has(Status) {
		t.Fatalf("magnetometer and status should fire together, got %b", d)
	}
	if d.Has(Battery) || d.Has(Environment) {
		t.Fatalf("slow tasks fired early: %b", d)
	}

	// Timers reset to the firing time, not to a fixed grid.
	if d := s.Due(t0.Add(1500 * time.Millisecond)); d.Has(Magnetometer) {
		t.Fatal("magnetometer fired twice within one interval")
	}
	if d := s.Due(t0.Add(3 * time.Second)); !d.Has(Environment) {
		t.Fatal("environment not due at 3s")
	}
	if d := s.Due(t0.Add(5 * time.Second)); !d.Has(Battery) {
		t.Fatal("battery not due at 5s")
	}
}

func TestDueLateFiresOnce(t *testing.T) {
	s := New(clock.NewStepper(t0), 100, intervals())
	s.Start(t0)

	d := s.Due(t0.Add(12 * time.Second))
	for _, task := range []Task{Battery, Environment, Magnetometer, Status} {
		if !d.Has(task) {
			t.Errorf("%v not due after 12s", task)
		}
	}
	if d := s.Due(t0.Add(12 * time.Second)); !d.Empty() {
		t.Errorf("tasks fired again at the same instant: %b", d)
	}
}

func TestZeroIntervalDisablesTask(t *testing.T) {
	iv := intervals()
	iv[Battery] = 0
	s := New(clock.NewStepper(t0), 100, iv)
	s.Start(t0)

	for i := 1; i <= 20; i++ {
		if s.Due(t0.Add(time.Duration(i) * time.Second)).Has(Battery) {
			t.Fatal("disabled battery task fired")
		}
	}
}

func TestPaceSleepsRemainder(t *testing.T) {
	clk := clock.NewStepper(t0)
	s := New(clk, 1000, intervals())
	if s.Period() != time.Millisecond {
		t.Fatalf("period = %v, want 1ms", s.Period())
	}

	start := clk.Now()
	clk.Sleep(300 * time.Microsecond) // processing
	if slept := s.Pace(start); slept != 700*time.Microsecond {
		t.Errorf("slept %v, want 700µs", slept)
	}
	if got := clk.Now().Sub(start); got != time.Millisecond {
		t.Errorf("iteration took %v, want 1ms", got)
	}
	if s.Overruns() != 0 {
		t.Errorf("overruns = %d, want 0", s.Overruns())
	}
}

func TestPaceOverrunDoesNotSleep(t *testing.T) {
	clk := clock.NewStepper(t0)
	s := New(clk, 1000, intervals())

	start := clk.Now()
	clk.Sleep(3 * time.Millisecond)
	before := clk.Slept()
	if slept := s.Pace(start); slept != 0 {
		t.Errorf("slept %v on overrun", slept)
	}
	if clk.Slept() != before {
		t.Error("Pace called Sleep on overrun")
	}
	if s.Overruns() != 1 {
		t.Errorf("overruns = %d, want 1", s.Overruns())
	}

	// Exactly one period is neither a sleep nor an overrun.
	start = clk.Now()
	clk.Sleep(time.Millisecond)
	s.Pace(start)
	if s.Overruns() != 1 {
		t.Errorf("overruns = %d after exact period, want 1", s.Overruns())
	}
}

func TestTaskString(t *testing.T) {
	if Magnetometer.String() != "magnetometer" || Task(42).String() != "unknown" {
		t.Errorf("unexpected names %q %q", Magnetometer, Task(42))
	}
}
