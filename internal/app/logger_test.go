package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/relabs-tech/stratus_logger/internal/calibration"
	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/imu"
	"github.com/relabs-tech/stratus_logger/internal/logfile"
	"github.com/relabs-tech/stratus_logger/internal/schedule"
	"github.com/relabs-tech/stratus_logger/internal/session"
	"github.com/relabs-tech/stratus_logger/internal/sim"
	"github.com/relabs-tech/stratus_logger/internal/status"
	"github.com/relabs-tech/stratus_logger/internal/storage"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type rig struct {
	clk    *clock.Stepper
	pack   *sim.Pack
	mem    *storage.Memory
	events []status.Event
	logger *Logger
}

func testOptions() Options {
	var iv schedule.Intervals
	iv[schedule.Battery] = time.Second
	iv[schedule.Environment] = time.Second
	iv[schedule.Magnetometer] = 100 * time.Millisecond
	iv[schedule.Status] = 500 * time.Millisecond
	return Options{
		Rate:         100,
		Intervals:    iv,
		GRef:         9.8,
		FlushEvery:   10,
		ErrorDisplay: 2 * time.Second,
		FailureLimit: 3,
	}
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	r := &rig{clk: clock.NewStepper(t0), mem: storage.NewMemory()}
	r.pack = sim.NewPack(r.clk, 1)
	cal := calibration.Result{
		GyroBias:  r.pack.IMU.GyroBias,
		MagOffset: r.pack.Mag.Offset,
		MagScale:  imu.Vector3{X: 49.5, Y: 40.5, Z: 22.5},
	}
	dev := Devices{
		IMU:    r.pack.IMU,
		Mag:    r.pack.Mag,
		Env:    r.pack.Env,
		Power:  r.pack.Power,
		Switch: r.pack.Switch,
	}
	rep := status.ReporterFunc(func(ev status.Event) { r.events = append(r.events, ev) })
	r.logger = NewLogger(dev, r.mem, cal, r.clk, rep, opts)
	r.logger.Begin()
	return r
}

func (r *rig) steps(n int) {
	for i := 0; i < n; i++ {
		r.logger.Step()
	}
}

func (r *rig) find(k status.Kind) []status.Event {
	var out []status.Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func TestLoggerSessionLifecycle(t *testing.T) {
	r := newRig(t, testOptions())

	r.pack.Switch.Set(true)
	r.steps(50)
	if got := r.logger.Session().State(); got != session.Active {
		t.Fatalf("state = %v, want Active", got)
	}
	r.pack.Switch.Set(false)
	r.steps(1)
	if got := r.logger.Session().State(); got != session.Idle {
		t.Fatalf("state = %v, want Idle", got)
	}

	lines := strings.Split(strings.TrimSuffix(r.mem.Contents("LOG001.CSV"), "\n"), "\n")
	if len(lines) != 53 {
		t.Fatalf("got %d lines, want header + start volt + 50 records + end volt", len(lines))
	}
	if lines[0] != logfile.Header {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "# Battery Start Voltage: 4.20 V" {
		t.Errorf("start voltage = %q", lines[1])
	}
	if !strings.HasPrefix(lines[52], "# Battery End Voltage: ") {
		t.Errorf("end voltage = %q", lines[52])
	}
	if !strings.HasPrefix(lines[2], "0.000000,") || !strings.HasPrefix(lines[3], "0.010000,") {
		t.Errorf("timestamps not paced at 10 ms: %q, %q", lines[2], lines[3])
	}
	for i, line := range lines[2:52] {
		if n := strings.Count(line, ",") + 1; n != logfile.NumFields {
			t.Fatalf("record %d has %d fields", i, n)
		}
	}

	stopped := r.find(status.KindSessionStopped)
	if len(stopped) != 1 || stopped[0].Records != 50 || stopped[0].File != "LOG001.CSV" {
		t.Fatalf("stop events = %+v", stopped)
	}
	if stopped[0].MaxG <= 0 {
		t.Errorf("MaxG = %v, want positive", stopped[0].MaxG)
	}
}

func TestLoggerSecondSessionUsesNextFile(t *testing.T) {
	r := newRig(t, testOptions())
	for i := 0; i < 2; i++ {
		r.pack.Switch.Set(true)
		r.steps(5)
		r.pack.Switch.Set(false)
		r.steps(1)
	}
	if !r.mem.Exists("LOG001.CSV") || !r.mem.Exists("LOG002.CSV") {
		t.Errorf("files = %v", r.mem.Files())
	}
}

func TestLoggerIdleTakesNoSamples(t *testing.T) {
	opts := testOptions()
	opts.IdlePoll = 5 * time.Millisecond
	r := newRig(t, opts)

	r.steps(10)
	if files := r.mem.Files(); len(files) != 0 {
		t.Errorf("files created while idle: %v", files)
	}
	if got := r.clk.Slept(); got != 50*time.Millisecond {
		t.Errorf("slept %v, want 50ms of idle polling", got)
	}
	if r.logger.Estimator().MaxG() != 0 {
		t.Error("MaxG changed while idle")
	}
}

func TestLoggerStatusEvents(t *testing.T) {
	r := newRig(t, testOptions())
	r.pack.Switch.Set(true)
	r.steps(120) // 1.2 s

	st := r.find(status.KindStatus)
	if len(st) != 2 {
		t.Fatalf("got %d status events in 1.2 s at 500 ms, want 2", len(st))
	}
	last := st[len(st)-1]
	if !last.Logging || last.File != "LOG001.CSV" {
		t.Errorf("status = %+v", last)
	}
	if last.Heading < 0 || last.Heading >= 360 {
		t.Errorf("heading %v out of range", last.Heading)
	}
	if len(r.find(status.KindEnvironment)) < 2 {
		t.Error("missing environment events (initial read plus 1 s schedule)")
	}
}

func TestLoggerAbortsAfterConsecutiveReadFailures(t *testing.T) {
	r := newRig(t, testOptions())
	r.pack.Switch.Set(true)
	r.steps(3)

	r.pack.IMU.Err = errors.New("spi timeout")
	r.steps(2)
	if got := r.logger.Session().State(); got != session.Active {
		t.Fatalf("aborted after 2 failures")
	}
	r.steps(1)
	if got := r.logger.Session().State(); got != session.Idle {
		t.Fatalf("state = %v, want Idle after 3 failures", got)
	}
	errs := r.find(status.KindError)
	if len(errs) != 1 || errs[0].Message != session.MsgSensorReadFail {
		t.Errorf("errors = %+v", errs)
	}
	if last := r.logger.Session().Last(); last == nil || last.Records != 3 {
		t.Errorf("last session = %+v, want 3 records", last)
	}
}

func TestLoggerFailureCountResetsOnSuccess(t *testing.T) {
	r := newRig(t, testOptions())
	r.pack.Switch.Set(true)
	r.steps(1)
	for i := 0; i < 4; i++ {
		r.pack.IMU.Err = errors.New("glitch")
		r.steps(2)
		r.pack.IMU.Err = nil
		r.steps(1)
	}
	if got := r.logger.Session().State(); got != session.Active {
		t.Errorf("state = %v, want Active", got)
	}
}

func TestLoggerRunClosesSessionOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRig(t, testOptions())
	r.logger.rep = status.ReporterFunc(func(ev status.Event) {
		r.events = append(r.events, ev)
		if ev.Kind == status.KindSessionStarted {
			cancel()
		}
	})
	r.logger.sess = session.NewManager(session.Config{
		Storage:  r.mem,
		Power:    r.pack.Power,
		Reporter: r.logger.rep,
		Metrics:  r.logger.est,
		Rate:     100,
	})
	r.pack.Switch.Set(true)

	if err := r.logger.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.logger.Session().State(); got != session.Idle {
		t.Errorf("state = %v, want Idle", got)
	}
	if !strings.Contains(r.mem.Contents("LOG001.CSV"), "# Battery End Voltage") {
		t.Error("session not stopped cleanly")
	}
}

func TestLoggerSampleCarriesCachedMagReading(t *testing.T) {
	r := newRig(t, testOptions())
	r.pack.Switch.Set(true)
	r.steps(15) // magnetometer task fired at 100 ms

	s, err := r.logger.read(r.clk.Now())
	if err != nil {
		t.Fatal(err)
	}
	if s.Mag == (imu.Vector3{}) {
		t.Fatal("sample has no magnetometer reading")
	}
	if s.Mag != r.logger.magRaw {
		t.Errorf("sample mag %+v, want cached raw %+v", s.Mag, r.logger.magRaw)
	}
	if got := r.logger.Estimator().CalibrateMag(s.Mag); got != r.logger.mag {
		t.Errorf("calibrated %+v, want logged %+v", got, r.logger.mag)
	}
}
