package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// NATSPublisher emits recorded delay samples as JSON events, one subject
// per route under the configured base.
type NATSPublisher struct {
	nc          *nats.Conn
	subjectBase string
	logger      logger.Logger
}

func NewNATSPublisher(url, subjectBase string, log logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tripwatch-data"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subjectBase: subjectBase, logger: log}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// DelayMessage is the wire shape of one published sample.
type DelayMessage struct {
	Timestamp     time.Time `json:"timestamp"`
	StopID        string    `json:"stopId"`
	RouteCode     string    `json:"routeCode"`
	ScheduledTime string    `json:"scheduledTime"`
	DelaySeconds  int       `json:"delaySeconds"`
}

// PublishSamples publishes each sample on <base>.<routeCode>. Individual
// publish failures are logged and counted, not fatal, so one bad sample
// never blocks the rest of the batch.
func (p *NATSPublisher) PublishSamples(samples []models.DelaySample) error {
	var failed int
	for _, sample := range samples {
		subject := fmt.Sprintf("%s.%s", p.subjectBase, subjectToken(sample.RouteCode))
		msg := DelayMessage{
			Timestamp:     sample.Timestamp,
			StopID:        sample.StopID,
			RouteCode:     sample.RouteCode,
			ScheduledTime: sample.ScheduledTime.String(),
			DelaySeconds:  sample.DelaySeconds,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			p.logger.Warn("Failed to encode delay sample", "stop_id", sample.StopID, "error", err)
			failed++
			continue
		}
		if err := p.nc.Publish(subject, b); err != nil {
			p.logger.Warn("Failed to publish delay sample", "subject", subject, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to publish %d of %d delay samples", failed, len(samples))
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
