// Package events publishes coordinator activity to NATS so other services
// (dashboards, alerting) can react without polling the coordinator.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// Subjects
const (
	SubjectChangePrefix = "monitor.gateway"     // monitor.gateway.<identifier>.change
	SubjectTrigger      = "monitor.coordinator.trigger"
	SubjectScan         = "monitor.coordinator.scan"
)

// Publisher publishes coordinator events to NATS. A nil Publisher is a
// valid no-op so the coordinator runs without a broker.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates an event publisher
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// PublishChange publishes a detected change event
func (p *Publisher) PublishChange(event models.ChangeEvent) {
	if p == nil || p.nc == nil {
		return
	}

	subject := fmt.Sprintf("%s.%s.change", SubjectChangePrefix, event.Identifier)
	p.publish(subject, event)
}

// PublishTrigger publishes a trigger gate decision
func (p *Publisher) PublishTrigger(decision models.TriggerDecision) {
	if p == nil || p.nc == nil {
		return
	}
	p.publish(SubjectTrigger, decision)
}

// PublishScan publishes a completed scan record
func (p *Publisher) PublishScan(record models.ScanRecord) {
	if p == nil || p.nc == nil {
		return
	}
	p.publish(SubjectScan, record)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}
