package sink

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/phuslu/log"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    log.Logger
}

func NewMQTT(cfg MQTTConfig, logger log.Logger) (*MQTT, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	m := &MQTT{cfg: cfg, log: logger}
	m.log.Context = log.NewContext(nil).Str("module", "mqtt_sink").Value()
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn().Err(err).Msg("mqtt connection lost")
	})
	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	m.log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("connected")
	return m, nil
}

func (m *MQTT) Publish(ctx context.Context, payload []byte) error {
	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, payload)
	timeout := m.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s: timeout", m.cfg.Topic)
	}
	return token.Error()
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
