package status

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/clock"
)

// Logger writes events to a logrus logger. Errors go to error level,
// battery and environment readings to info, the rest to debug.
type Logger struct {
	Log *log.Logger
}

// NewLogger reports into l, or the standard logrus logger if l is nil.
func NewLogger(l *log.Logger) *Logger {
	if l == nil {
		l = log.StandardLogger()
	}
	return &Logger{Log: l}
}

// Report implements Reporter.
func (l *Logger) Report(ev Event) {
	entry := l.Log.WithField("event", ev.Kind.String())
	switch ev.Kind {
	case KindProgress:
		entry.WithFields(log.Fields{"stage": ev.Stage, "done": ev.Done, "total": ev.Total}).
			Debugf("calibration: %s %d%%", ev.Stage, ev.Percent)
	case KindBattery:
		entry.Infof("battery: %.2f V", ev.Voltage)
	case KindEnvironment:
		entry.Infof("environment: T:%.1fC H:%.1f%%", ev.Temperature, ev.Humidity)
	case KindStatus:
		entry.WithField("logging", ev.Logging).
			Debugf("status: heading=%.1f max_g=%.2f", ev.Heading, ev.MaxG)
	case KindSessionStarted:
		entry.Debugf("session: started %s", ev.File)
	case KindSessionStopped:
		entry.WithField("records", ev.Records).
			Debugf("session: stopped %s (max %.2f g)", ev.File, ev.MaxG)
	case KindError:
		entry.Errorf("error: %s", ev.Message)
	}
}

// WithClock stamps events that carry no time with c.Now() before passing
// them on.
func WithClock(r Reporter, c clock.Clock) Reporter {
	return ReporterFunc(func(ev Event) {
		if ev.Time.IsZero() {
			ev.Time = c.Now()
		}
		r.Report(ev)
	})
}
