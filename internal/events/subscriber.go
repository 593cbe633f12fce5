package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// SubjectScanRequest carries scan requests addressed to gateway agents
const SubjectScanRequest = "monitor.gateway.scan.request"

// ScanHandler processes one inbound scan request
type ScanHandler func(req models.ScanRequest)

// SubscribeScanRequests subscribes a gateway agent to remote scan requests
func SubscribeScanRequests(nc *nats.Conn, handler ScanHandler) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(SubjectScanRequest, func(msg *nats.Msg) {
		var req models.ScanRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal scan request")
			return
		}
		handler(req)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("subject", SubjectScanRequest).Msg("Scan request subscriber started")
	return sub, nil
}
