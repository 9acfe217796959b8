package status

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/clock"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestKindJSON(t *testing.T) {
	ev := Event{Kind: KindSessionStopped, File: "LOG002.CSV", Records: 42}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"kind":"session_stopped"`) {
		t.Errorf("kind not encoded by name: %s", b)
	}
	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ev, back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
	var k Kind
	if err := k.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestMultiSkipsNil(t *testing.T) {
	var got []Kind
	rec := ReporterFunc(func(ev Event) { got = append(got, ev.Kind) })
	Multi{rec, nil, rec}.Report(Event{Kind: KindBattery})
	if diff := cmp.Diff([]Kind{KindBattery, KindBattery}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSnapshotSessionCycle(t *testing.T) {
	var s Snapshot
	s.Apply(Event{Kind: KindStatus, MaxG: 3.5, Heading: 90})
	s.Apply(Event{Kind: KindSessionStarted, File: "LOG001.CSV"})
	if !s.Logging || s.File != "LOG001.CSV" || s.MaxG != 0 {
		t.Fatalf("after start: %+v", s)
	}
	s.Apply(Event{Kind: KindSessionStopped, File: "LOG001.CSV", MaxG: 2.2})
	want := Snapshot{Heading: 90, MaxG: 2.2, LastFile: "LOG001.CSV"}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("after stop (-want +got):\n%s", diff)
	}
}

func TestSnapshotErrorExpires(t *testing.T) {
	var s Snapshot
	s.Apply(Event{Kind: KindError, Time: t0, Message: "File Open Fail", Duration: 2 * time.Second})
	if !s.ShowingError(t0.Add(time.Second)) {
		t.Error("error hidden too early")
	}
	if s.ShowingError(t0.Add(2 * time.Second)) {
		t.Error("error still shown after its duration")
	}
}

func TestWithClockStampsZeroTime(t *testing.T) {
	c := clock.NewStepper(t0)
	var got []Event
	r := WithClock(ReporterFunc(func(ev Event) { got = append(got, ev) }), c)
	r.Report(Event{Kind: KindBattery})
	stamped := t0.Add(-time.Hour)
	r.Report(Event{Kind: KindBattery, Time: stamped})
	if !got[0].Time.Equal(t0) || !got[1].Time.Equal(stamped) {
		t.Errorf("times = %v, %v", got[0].Time, got[1].Time)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	r := NewLogger(l)

	r.Report(Progress("gyro", 1, 200, 0))
	if buf.Len() != 0 {
		t.Errorf("progress logged at info: %q", buf.String())
	}
	r.Report(Error("Log Write Fail", time.Second))
	if !strings.Contains(buf.String(), "Log Write Fail") || !strings.Contains(buf.String(), "level=error") {
		t.Errorf("error event not logged at error level: %q", buf.String())
	}
}
