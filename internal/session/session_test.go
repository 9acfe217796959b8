package session

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/relabs-tech/stratus_logger/internal/calibration"
	"github.com/relabs-tech/stratus_logger/internal/imu"
	"github.com/relabs-tech/stratus_logger/internal/logfile"
	"github.com/relabs-tech/stratus_logger/internal/orientation"
	"github.com/relabs-tech/stratus_logger/internal/status"
	"github.com/relabs-tech/stratus_logger/internal/storage"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct{ events []status.Event }

func (r *recorder) Report(ev status.Event) { r.events = append(r.events, ev) }

func (r *recorder) errors() []string {
	var msgs []string
	for _, ev := range r.events {
		if ev.Kind == status.KindError {
			msgs = append(msgs, ev.Message)
		}
	}
	return msgs
}

type battery struct {
	v   float64
	err error
}

func (b *battery) ReadVoltage() (float64, error) { return b.v, b.err }

func newManager(st storage.Storage, rec *recorder) *Manager {
	return NewManager(Config{
		Storage:      st,
		Reporter:     rec,
		Metrics:      orientation.New(calibration.Result{MagScale: imu.Vector3{X: 1, Y: 1, Z: 1}}, 9.8),
		Rate:         1000,
		FlushEvery:   1000,
		ErrorDisplay: 2 * time.Second,
	})
}

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestFileName(t *testing.T) {
	if got := FileName(7); got != "LOG007.CSV" {
		t.Errorf("FileName(7) = %q", got)
	}
	if got := FileName(1234); got != "LOG1234.CSV" {
		t.Errorf("FileName(1234) = %q", got)
	}
}

func TestNextIndexFillsSmallestGap(t *testing.T) {
	m := storage.NewMemory("LOG001.CSV", "LOG002.CSV", "LOG004.CSV")
	idx, err := NextIndex(m)
	if err != nil || idx != 3 {
		t.Fatalf("NextIndex = %d, %v; want 3", idx, err)
	}
}

func TestRisingEdgeCreatesFirstFile(t *testing.T) {
	st := storage.NewMemory()
	rec := &recorder{}
	m := newManager(st, rec)

	if tr := m.Observe(true, t0); tr != Started {
		t.Fatalf("transition = %v, want Started", tr)
	}
	if m.State() != Active || m.Current().Name != "LOG001.CSV" {
		t.Fatalf("state %v file %+v", m.State(), m.Current())
	}
	if got := lines(st.Contents("LOG001.CSV")); got[0] != logfile.Header {
		t.Errorf("first line = %q, want header", got[0])
	}
	if rec.events[0].Kind != status.KindSessionStarted || rec.events[0].File != "LOG001.CSV" {
		t.Errorf("event = %+v", rec.events[0])
	}
}

func TestSecondSessionUsesNextIndex(t *testing.T) {
	st := storage.NewMemory("LOG001.CSV")
	m := newManager(st, &recorder{})

	m.Observe(true, t0)
	if m.Current().Name != "LOG002.CSV" {
		t.Fatalf("first session = %s, want LOG002.CSV", m.Current().Name)
	}
	m.Observe(false, t0.Add(time.Second))
	m.Observe(true, t0.Add(2*time.Second))
	if m.Current().Name != "LOG003.CSV" {
		t.Fatalf("second session = %s, want LOG003.CSV", m.Current().Name)
	}
	if m.Last().Name != "LOG002.CSV" {
		t.Errorf("last = %s", m.Last().Name)
	}
}

func TestLevelWithoutEdgeDoesNothing(t *testing.T) {
	st := storage.NewMemory()
	m := newManager(st, &recorder{})

	if tr := m.Observe(false, t0); tr != None {
		t.Fatalf("low level from Idle = %v", tr)
	}
	m.Observe(true, t0)
	if tr := m.Observe(true, t0.Add(time.Millisecond)); tr != None {
		t.Fatalf("held high = %v", tr)
	}
	if len(st.Files()) != 1 {
		t.Errorf("files = %v", st.Files())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	st := storage.NewMemory()
	rec := &recorder{}
	m := newManager(st, rec)

	m.Observe(true, t0)
	m.Stop()
	closes, n := st.Closes(), len(rec.events)
	m.Stop()
	if tr := m.Observe(false, t0.Add(time.Second)); tr != None {
		t.Errorf("falling edge after Stop = %v", tr)
	}
	if st.Closes() != closes || len(rec.events) != n {
		t.Errorf("second stop touched the file: closes %d->%d events %d->%d", closes, st.Closes(), n, len(rec.events))
	}
}

func TestOpenFailureStaysIdle(t *testing.T) {
	st := storage.NewMemory()
	st.FailOpen = true
	rec := &recorder{}
	m := newManager(st, rec)

	if tr := m.Observe(true, t0); tr != None {
		t.Fatalf("transition = %v", tr)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v", m.State())
	}
	if diff := cmp.Diff([]string{MsgOpenFail}, rec.errors()); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	ev := rec.events[len(rec.events)-1]
	if ev.Duration != 2*time.Second {
		t.Errorf("display duration = %v", ev.Duration)
	}

	// The operator can retry with a new rising edge.
	st.FailOpen = false
	m.Observe(false, t0.Add(time.Second))
	if tr := m.Observe(true, t0.Add(2*time.Second)); tr != Started {
		t.Fatalf("retry transition = %v", tr)
	}
}

func TestHeaderWriteFailureStaysIdle(t *testing.T) {
	st := storage.NewMemory()
	st.FailWriteAt = 1
	rec := &recorder{}
	m := newManager(st, rec)

	if err := m.Start(t0); !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("Start err = %v", err)
	}
	if m.State() != Idle || m.Current() != nil {
		t.Fatalf("state = %v current = %+v", m.State(), m.Current())
	}
	if st.Closes() != 1 {
		t.Errorf("handle not closed after failed start")
	}
}

func TestVoltageAnnotations(t *testing.T) {
	st := storage.NewMemory()
	bat := &battery{v: 4.18}
	m := NewManager(Config{Storage: st, Power: bat, Rate: 100})

	m.Observe(true, t0)
	m.Append(logfile.Record{Timestamp: 1}, 1)
	bat.v = 3.91
	m.Observe(false, t0.Add(time.Second))

	want := []string{
		logfile.Header,
		"# Battery Start Voltage: 4.18 V",
		logfile.Record{Timestamp: 1}.String(),
		"# Battery End Voltage: 3.91 V",
	}
	if diff := cmp.Diff(want, lines(st.Contents("LOG001.CSV"))); diff != "" {
		t.Errorf("file (-want +got):\n%s", diff)
	}
	last := m.Last()
	if last.StartVoltage == nil || *last.StartVoltage != 4.18 || last.EndVoltage == nil || *last.EndVoltage != 3.91 {
		t.Errorf("voltages = %v %v", last.StartVoltage, last.EndVoltage)
	}
}

func TestNoPowerMonitorNoAnnotations(t *testing.T) {
	st := storage.NewMemory()
	m := newManager(st, &recorder{})
	m.Observe(true, t0)
	m.Observe(false, t0.Add(time.Second))
	if got := st.Contents("LOG001.CSV"); strings.Contains(got, "#") {
		t.Errorf("unexpected annotation in %q", got)
	}
}

func TestEndVoltageFailureIsNonFatal(t *testing.T) {
	st := storage.NewMemory()
	bat := &battery{v: 4}
	rec := &recorder{}
	m := NewManager(Config{Storage: st, Power: bat, Reporter: rec, Rate: 100})

	m.Observe(true, t0)
	bat.err = errors.New("i2c nack")
	m.Observe(false, t0.Add(time.Second))

	if m.State() != Idle {
		t.Fatalf("state = %v", m.State())
	}
	if diff := cmp.Diff([]string{MsgEndVoltFail}, rec.errors()); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	if st.Closes() != 1 {
		t.Errorf("file not closed")
	}
}

func TestCloseFailureStillIdle(t *testing.T) {
	st := storage.NewMemory()
	rec := &recorder{}
	m := newManager(st, rec)

	m.Observe(true, t0)
	st.FailClose = true
	m.Observe(false, t0.Add(time.Second))
	if m.State() != Idle {
		t.Fatalf("state = %v", m.State())
	}
	if diff := cmp.Diff([]string{MsgCloseFail}, rec.errors()); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}

func TestWriteFailureOnFifthSample(t *testing.T) {
	st := storage.NewMemory()
	st.FailWriteAt = 6 // header, then samples 1..5
	rec := &recorder{}
	m := newManager(st, rec)

	m.Observe(true, t0)
	var err error
	for i := 1; i <= 5; i++ {
		err = m.Append(logfile.Record{Timestamp: float64(i)}, float64(i)/1000)
		if i < 5 && err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
	}
	if !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("5th sample err = %v", err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle", m.State())
	}
	got := lines(st.Contents("LOG001.CSV"))
	if len(got) != 5 || got[0] != logfile.Header {
		t.Fatalf("file has %d lines: %q", len(got), got)
	}
	if diff := cmp.Diff([]string{MsgWriteFail}, rec.errors()); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	if m.Last().Records != 4 {
		t.Errorf("records = %d, want 4", m.Last().Records)
	}
	if err := m.Append(logfile.Record{}, 0); !errors.Is(err, ErrNotActive) {
		t.Errorf("append after abort = %v", err)
	}
}

func TestMaxGResetAtSessionStart(t *testing.T) {
	est := orientation.New(calibration.Result{MagScale: imu.Vector3{X: 1, Y: 1, Z: 1}}, 9.8)
	rec := &recorder{}
	m := NewManager(Config{Storage: storage.NewMemory(), Metrics: est, Reporter: rec, Rate: 100})

	m.Observe(true, t0)
	est.Update(imu.Sample{Accel: imu.Vector3{Z: 19.6}}, 0.01)
	m.Observe(false, t0.Add(time.Second))

	stopped := rec.events[len(rec.events)-1]
	if stopped.Kind != status.KindSessionStopped || stopped.MaxG < 1.99 {
		t.Errorf("stop event = %+v", stopped)
	}

	m.Observe(true, t0.Add(2*time.Second))
	if est.MaxG() != 0 {
		t.Errorf("MaxG at new session = %v", est.MaxG())
	}
}

func TestAbortFromSensorFailure(t *testing.T) {
	st := storage.NewMemory()
	rec := &recorder{}
	m := newManager(st, rec)
	m.Observe(true, t0)
	m.Abort(MsgSensorReadFail)
	m.Abort(MsgSensorReadFail)
	if m.State() != Idle {
		t.Fatalf("state = %v", m.State())
	}
	if diff := cmp.Diff([]string{MsgSensorReadFail}, rec.errors()); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
}
