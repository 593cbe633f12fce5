// Package ingest consumes sensor telemetry from the MQTT broker and
// persists it to the gateway store, where the summary API serves it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
	"github.com/sensor-gateway/gateway-monitor/internal/storage"
)

// Config holds MQTT consumer settings
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	ConnectTimeout time.Duration
}

// telemetryMessage is the wire format published by sensor nodes.
// The device identifier comes from the topic (sensors/<identifier>/data).
type telemetryMessage struct {
	Channels  map[string]float64 `json:"channels"`
	Channel   string             `json:"channel,omitempty"`
	Value     float64            `json:"value,omitempty"`
	Timestamp *time.Time         `json:"timestamp,omitempty"`
}

// Consumer subscribes to telemetry topics and writes readings to the store
type Consumer struct {
	cfg    Config
	store  storage.Store
	client mqtt.Client
}

// NewConsumer creates an MQTT telemetry consumer
func NewConsumer(cfg Config, store storage.Store) *Consumer {
	return &Consumer{cfg: cfg, store: store}
}

// Start connects to the broker with bounded retries and subscribes.
// The connection is torn down when ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		c.client = mqtt.NewClient(opts)
		if token := c.client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("broker", c.cfg.BrokerURL).Msg("MQTT connect failed, retrying")
			return token.Error()
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}

	if token := c.client.Subscribe(c.cfg.Topic, 0, c.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Topic, token.Error())
	}

	log.Info().Str("broker", c.cfg.BrokerURL).Str("topic", c.cfg.Topic).Msg("Telemetry ingest started")

	go func() {
		<-ctx.Done()
		c.client.Disconnect(250)
		log.Info().Msg("Telemetry ingest stopped")
	}()

	return nil
}

// handleMessage parses one telemetry message and persists its readings
func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	identifier := identifierFromTopic(msg.Topic())
	if identifier == "" {
		log.Warn().Str("topic", msg.Topic()).Msg("Telemetry topic missing identifier segment")
		return
	}

	var payload telemetryMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Malformed telemetry payload")
		return
	}

	receivedAt := time.Now().UTC()
	if payload.Timestamp != nil {
		receivedAt = payload.Timestamp.UTC()
	}

	channels := payload.Channels
	if len(channels) == 0 && payload.Channel != "" {
		channels = map[string]float64{payload.Channel: payload.Value}
	}
	if len(channels) == 0 {
		log.Warn().Str("topic", msg.Topic()).Msg("Telemetry payload carries no channels")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for channel, value := range channels {
		reading := &models.SensorReading{
			Identifier: identifier,
			Channel:    channel,
			Value:      value,
			ReceivedAt: receivedAt,
		}
		if err := c.store.SaveReading(ctx, reading); err != nil {
			log.Error().Err(err).Str("identifier", identifier).Str("channel", channel).Msg("Failed to save reading")
		}
	}

	log.Debug().Str("identifier", identifier).Int("channels", len(channels)).Msg("Telemetry stored")
}

// identifierFromTopic extracts the device identifier from sensors/<id>/data
func identifierFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
