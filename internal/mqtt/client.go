package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Publisher sends period updates and spike rejections to the broker.
type Publisher struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// UpdateMessage is the payload published for every update. Each message
// carries a fresh report id so consumers can drop redeliveries.
type UpdateMessage struct {
	ReportID string `json:"report_id"`
	types.Update
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker flips the retained status to offline if we vanish.
	opts.SetWill(p.StatusTopic(), statusOffline, 1, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		c.Publish(p.StatusTopic(), 1, true, statusOnline)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial connection and respects ctx and Disconnect().
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) paho keeps retrying in the background.
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// StatusTopic is the retained online/offline topic of the gateway.
func (p *Publisher) StatusTopic() string {
	return p.cfg.MQTTTopicPrefix + "/status"
}

// UpdateTopic returns the topic of one device quantity.
func (p *Publisher) UpdateTopic(addr string, q types.Quantity) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.MQTTTopicPrefix, utils.CompactMAC(addr), q)
}

// RejectionTopic returns the topic for spike rejections of a device.
func (p *Publisher) RejectionTopic(addr string) string {
	return fmt.Sprintf("%s/%s/rejections", p.cfg.MQTTTopicPrefix, utils.CompactMAC(addr))
}

// HandleUpdate publishes u retained, so a late subscriber sees the last
// value or the unavailable state of every quantity.
func (p *Publisher) HandleUpdate(u types.Update) error {
	msg := UpdateMessage{ReportID: uuid.NewString(), Update: u}
	return p.publish(p.UpdateTopic(u.Address, u.Quantity), 1, true, msg)
}

// PublishRejection publishes a rejected sample. Rejections are events and
// are not retained.
func (p *Publisher) PublishRejection(rej types.Rejection) error {
	return p.publish(p.RejectionTopic(rej.Address), 0, false, rej)
}

// OnRejection is PublishRejection for callers that cannot handle errors.
func (p *Publisher) OnRejection(rej types.Rejection) {
	if err := p.PublishRejection(rej); err != nil {
		p.logger.Debug("mqtt: rejection not published", "addr", rej.Address, "error", err)
	}
}

func (p *Publisher) publish(topic string, qos byte, retained bool, v any) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := p.client.Publish(topic, qos, retained, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("mqtt publish failed", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}

	p.logger.Debug("mqtt published", "topic", topic, "bytes", len(data), "retained", retained)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect publishes the offline status and closes the connection.
// Idempotent; after Disconnect, Connect() returns an error.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.IsConnected() {
		p.client.Publish(p.StatusTopic(), 1, true, statusOffline).WaitTimeout(time.Second)
	}
	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
