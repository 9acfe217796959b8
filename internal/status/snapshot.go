package status

import "time"

// Snapshot is the merged view of every event seen so far, which is what a
// screen shows.
type Snapshot struct {
	Time time.Time `json:"time"`

	HaveBattery bool    `json:"have_battery"`
	Voltage     float64 `json:"voltage"`

	HaveEnv     bool    `json:"have_env"`
	Temperature float64 `json:"temp_c"`
	Humidity    float64 `json:"humidity_pct"`

	Heading float64 `json:"heading"`
	MaxG    float64 `json:"max_g"`
	Logging bool    `json:"logging"`

	File     string `json:"file,omitempty"`      // current session
	LastFile string `json:"last_file,omitempty"` // previous session

	Calibrating string `json:"calibrating,omitempty"`
	Percent     int    `json:"percent,omitempty"`

	ErrorMessage string    `json:"error,omitempty"`
	ErrorUntil   time.Time `json:"error_until,omitempty"`
}

// Apply folds ev into the snapshot.
func (s *Snapshot) Apply(ev Event) {
	if !ev.Time.IsZero() {
		s.Time = ev.Time
	}
	switch ev.Kind {
	case KindProgress:
		s.Calibrating = ev.Stage
		s.Percent = ev.Percent
		if ev.Percent >= 100 {
			s.Calibrating = ""
		}
	case KindBattery:
		s.HaveBattery = true
		s.Voltage = ev.Voltage
	case KindEnvironment:
		s.HaveEnv = true
		s.Temperature = ev.Temperature
		s.Humidity = ev.Humidity
	case KindStatus:
		s.Heading = ev.Heading
		s.MaxG = ev.MaxG
		s.Logging = ev.Logging
	case KindSessionStarted:
		s.Logging = true
		s.File = ev.File
		s.MaxG = 0
	case KindSessionStopped:
		s.Logging = false
		s.File = ""
		s.LastFile = ev.File
		s.MaxG = ev.MaxG
	case KindError:
		s.ErrorMessage = ev.Message
		s.ErrorUntil = ev.Time.Add(ev.Duration)
	}
}

// ShowingError reports whether an error message is still on screen at now.
func (s *Snapshot) ShowingError(now time.Time) bool {
	return s.ErrorMessage != "" && now.Before(s.ErrorUntil)
}
