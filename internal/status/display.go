// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/stratus_logger/internal/clock"
)

// Screen geometry of the 128x64 OLED.
const (
	screenW    = 128
	screenH    = 64
	lineHeight = 12
)

var spinner = [...]string{"|", "/", "-", "\\"}

// Screen is a monochrome panel.
type Screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Display renders the status snapshot on an OLED. Report only records the
// event; drawing happens on the goroutine running Run, so a slow I²C
// transfer never holds up the caller.
type Display struct {
	screen Screen
	clk    clock.Clock

	mu   sync.Mutex
	snap Snapshot

	dirty chan struct{}
}

// NewDisplay draws on screen. c decides when error messages expire.
func NewDisplay(screen Screen, c clock.Clock) *Display {
	return &Display{screen: screen, clk: c, dirty: make(chan struct{}, 1)}
}

// OpenSSD1306 initializes the OLED at its default address on bus.
func OpenSSD1306(bus i2c.Bus) (*ssd1306.Dev, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, errors.Wrap(err, "display: ssd1306 init")
	}
	log.Info("display: initialized")
	return dev, nil
}

// Report implements Reporter.
func (d *Display) Report(ev Event) {
	d.mu.Lock()
	d.snap.Apply(ev)
	d.mu.Unlock()
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

// Snapshot returns the current view.
func (d *Display) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// Run redraws on every change until ctx is done. It also redraws once an
// error message expires.
func (d *Display) Run(ctx context.Context) error {
	if err := d.draw(Splash()); err != nil {
		log.WithError(err).Warn("display: splash")
	}
	var expire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.dirty:
		case <-expire:
		}
		snap := d.Snapshot()
		now := d.clk.Now()
		expire = nil
		if snap.ShowingError(now) {
			expire = time.After(snap.ErrorUntil.Sub(now))
		}
		if err := d.draw(Lines(snap, now)); err != nil {
			log.WithError(err).Warn("display: draw")
		}
	}
}

func (d *Display) draw(lines []string) error {
	return d.screen.Draw(d.screen.Bounds(), Render(lines), image.Point{})
}

// Splash is shown before calibration starts.
func Splash() []string {
	return []string{"", "STRATUS", "Data Logger", "Keep still..."}
}

// Lines lays out the screen for snap at time now.
func Lines(snap Snapshot, now time.Time) []string {
	if snap.ShowingError(now) {
		return []string{"", "Error:", snap.ErrorMessage}
	}
	switch snap.Calibrating {
	case "gyro":
		return []string{"Calibrating Gyro", "Keep still " + spinner[snap.Percent%len(spinner)], fmt.Sprintf("%d%%", snap.Percent)}
	case "mag":
		return []string{"Calibrating Mag", "Rotate all axes", fmt.Sprintf("%d%%", snap.Percent)}
	}

	lines := make([]string, 0, 5)
	if snap.Logging {
		lines = append(lines, "Status: Logging")
	} else {
		lines = append(lines, "Status: Ready to log")
	}
	switch {
	case snap.File != "":
		lines = append(lines, "File: "+snap.File)
	case snap.LastFile != "":
		lines = append(lines, "Last: "+snap.LastFile)
	default:
		lines = append(lines, "")
	}
	g := fmt.Sprintf("Max G:%.2f g", snap.MaxG)
	if snap.HaveBattery {
		g += fmt.Sprintf(" %.2fV", snap.Voltage)
	}
	lines = append(lines, g)
	if snap.HaveEnv {
		lines = append(lines, fmt.Sprintf("T:%.1fC H:%.1f%%", snap.Temperature, snap.Humidity))
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, fmt.Sprintf("Heading:%.1f", snap.Heading))
	return lines
}

// Render draws up to five text lines into a 128x64 frame.
func Render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, screenW, screenH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		y := (i + 1) * lineHeight
		if y > screenH {
			break
		}
		drawer.Dot = fixed.P(0, y-1)
		drawer.DrawString(line)
	}
	return img
}
