package status

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Publisher is the part of mqtt.Client used by MQTT.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes every event as JSON on <prefix>/<kind>. Publishing does
// not wait for the broker; failures are logged when the token completes.
type MQTT struct {
	client Publisher
	prefix string
}

// NewMQTT publishes through client under prefix.
func NewMQTT(client Publisher, prefix string) *MQTT {
	return &MQTT{client: client, prefix: prefix}
}

// ConnectMQTT connects to broker and blocks until the broker answers.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt: connect %s", broker)
	}
	log.Infof("mqtt: connected to broker at %s", broker)
	return client, nil
}

// Topic returns the topic events of kind k are published on.
func Topic(prefix string, k Kind) string {
	return prefix + "/" + k.String()
}

// Report implements Reporter.
func (m *MQTT) Report(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Warn("mqtt: marshal event")
		return
	}
	topic := Topic(m.prefix, ev.Kind)
	// The latest status stays on the broker for late subscribers.
	retained := ev.Kind == KindStatus
	token := m.client.Publish(topic, 0, retained, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.WithError(err).Warnf("mqtt: publish %s", topic)
		}
	}()
}

// FormatEvent renders ev as one console line.
func FormatEvent(ev Event) string {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Kind {
	case KindProgress:
		return fmt.Sprintf("%s [CAL ] %s %3d%%", ts, ev.Stage, ev.Percent)
	case KindBattery:
		return fmt.Sprintf("%s [BATT] %.2f V", ts, ev.Voltage)
	case KindEnvironment:
		return fmt.Sprintf("%s [ENV ] T=%.1f C  H=%.1f %%", ts, ev.Temperature, ev.Humidity)
	case KindStatus:
		state := "idle"
		if ev.Logging {
			state = "logging " + ev.File
		}
		return fmt.Sprintf("%s [STAT] heading=%6.1f  max_g=%5.2f  %s", ts, ev.Heading, ev.MaxG, state)
	case KindSessionStarted:
		return fmt.Sprintf("%s [SESS] started %s", ts, ev.File)
	case KindSessionStopped:
		return fmt.Sprintf("%s [SESS] stopped %s  records=%d  max_g=%.2f", ts, ev.File, ev.Records, ev.MaxG)
	case KindError:
		return fmt.Sprintf("%s [ERR ] %s", ts, ev.Message)
	}
	return fmt.Sprintf("%s [%s]", ts, ev.Kind)
}
