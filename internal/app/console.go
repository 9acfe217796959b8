package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/config"
	"github.com/relabs-tech/stratus_logger/internal/status"
)

// ConsoleHandler prints every status event received over MQTT to out.
func ConsoleHandler(out io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var ev status.Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("console: %s unmarshal error: %v", msg.Topic(), err)
			return
		}
		fmt.Fprintln(out, status.FormatEvent(ev))
	}
}

// RunConsole subscribes to the logger's status topics and prints events
// until ctx is done.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not set")
	}
	client, err := status.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-console")
	if err != nil {
		return err
	}

	topic := cfg.MQTTTopicPrefix + "/#"
	token := client.Subscribe(topic, 0, ConsoleHandler(out))
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return errors.Wrapf(token.Error(), "console: subscribe %s", topic)
	}
	log.Infof("console: subscribed to %s", topic)

	<-ctx.Done()
	log.Info("console: shutting down")
	client.Disconnect(250)
	return nil
}
