// internal/export/mqtt.go
package export

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/glidertools/sailbus/internal/config"
	"github.com/glidertools/sailbus/internal/sail"
)

// Publisher pushes accepted snapshots to an MQTT broker for shore-side
// displays. It is a presentation-boundary consumer: it never touches the
// bus and a publish failure never disturbs polling.
type Publisher struct {
	conn   mqtt.Client
	prefix string
	logger *log.Logger
}

// New connects to the configured broker.
func New(cfg config.ExportConfig, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}

	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("export: mqtt connect %s: %w", broker, err)
	}

	return &Publisher{conn: conn, prefix: cfg.TopicPrefix, logger: logger}, nil
}

// Publish sends one snapshot. Errors are logged, not propagated: a broker
// outage must never disturb polling.
func (p *Publisher) Publish(s sail.Snapshot) {
	payload, err := Payload(s)
	if err != nil {
		p.logger.Printf("export: encode snapshot for %s: %v", s.Device, err)
		return
	}

	token := p.conn.Publish(Topic(p.prefix, s.Device), 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.logger.Printf("export: publish %s: %v", s.Device, err)
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.conn.Disconnect(250)
}

// Topic builds the per-device topic.
func Topic(prefix string, id sail.DeviceID) string {
	return prefix + "/" + string(id)
}

// Payload encodes a snapshot as JSON. Pure, for tests.
func Payload(s sail.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}
