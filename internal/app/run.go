package app

import (
	"context"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/config"
	"github.com/relabs-tech/stratus_logger/internal/status"
)

// reporters holds the status sinks enabled by the configuration.
type reporters struct {
	status.Multi
	mqtt mqtt.Client
}

func (r *reporters) close() {
	if r.mqtt != nil {
		r.mqtt.Disconnect(250)
	}
}

// openReporters builds the status sinks and starts the ones that need a
// goroutine. They stop when ctx is done.
func openReporters(ctx context.Context, cfg *config.Config, h *Hardware, c clock.Clock) (*reporters, error) {
	r := &reporters{Multi: status.Multi{status.NewLogger(nil)}}

	if h.Screen != nil {
		d := status.NewDisplay(h.Screen, c)
		go func() {
			if err := d.Run(ctx); err != nil && err != context.Canceled {
				log.WithError(err).Warn("display: stopped")
			}
		}()
		r.Multi = append(r.Multi, d)
	}

	if cfg.MQTTBroker != "" {
		client, err := status.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return nil, err
		}
		r.mqtt = client
		r.Multi = append(r.Multi, status.NewMQTT(client, cfg.MQTTTopicPrefix))
	}

	if cfg.WebServerPort > 0 {
		w := status.NewWeb()
		addr := fmt.Sprintf(":%d", cfg.WebServerPort)
		go func() {
			if err := w.ListenAndServe(ctx, addr); err != nil {
				log.WithError(err).Error("web: server stopped")
			}
		}()
		r.Multi = append(r.Multi, w)
	}
	return r, nil
}

// RunLogger calibrates and then logs until ctx is done.
func RunLogger(ctx context.Context, cfg *config.Config) error {
	log.Info("starting stratus data logger")
	clk := clock.System()

	h, err := OpenHardware(cfg, clk)
	if err != nil {
		return errors.Wrap(err, "open hardware")
	}
	defer h.Close()

	reps, err := openReporters(ctx, cfg, h, clk)
	if err != nil {
		return err
	}
	defer reps.close()
	rep := status.WithClock(reps.Multi, clk)

	cal, err := Calibrate(cfg, h, clk, rep)
	if err != nil {
		return err
	}

	l := NewLogger(h.Devices, h.Storage, cal, clk, rep, OptionsFromConfig(cfg))
	return l.Run(ctx)
}

// RunCalibration runs the calibration once and prints the result as YAML.
// Nothing is stored.
func RunCalibration(cfg *config.Config, out io.Writer) error {
	clk := clock.System()
	h, err := OpenHardware(cfg, clk)
	if err != nil {
		return errors.Wrap(err, "open hardware")
	}
	defer h.Close()

	fmt.Fprintln(out, "Keep the device still for the gyro, then rotate it through every axis.")
	cal, err := Calibrate(cfg, h, clk, status.WithClock(status.NewLogger(nil), clk))
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(cal)
	if err != nil {
		return errors.Wrap(err, "encode calibration")
	}
	_, err = out.Write(b)
	return err
}
