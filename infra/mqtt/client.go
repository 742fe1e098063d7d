// Package mqtt publishes hospital alerts and status transitions to an MQTT
// broker and optionally ingests hospital updates from it.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/erbalance/core/alert"
	"github.com/kilianp07/erbalance/core/events"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/monitoring"
	"github.com/kilianp07/erbalance/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled       bool            `json:"enabled"`
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	TopicPrefix   string          `json:"topic_prefix"`
	IngestUpdates bool            `json:"ingest_updates"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "erbalance-" + uuid.NewString()[:8]
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "hospital"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// UpdateHandler applies a hospital update received from the broker.
type UpdateHandler func(ctx context.Context, hospitalID string, u model.HospitalUpdate) error

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Publisher implements alert.Sink on top of Eclipse Paho.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
	onUpdate   UpdateHandler

	mu  sync.Mutex
	now func() time.Time
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPublisher connects to the broker. When cfg.IngestUpdates is set and
// onUpdate is not nil, the publisher subscribes to <prefix>/+/update.
func NewPublisher(cfg Config, onUpdate UpdateHandler, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("mqtt_client")
	}
	p := &Publisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		now:        time.Now,
	}
	if cfg.IngestUpdates {
		p.onUpdate = onUpdate
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if p.onUpdate == nil {
			return
		}
		if token := c.Subscribe(p.UpdateTopic(), p.qosFor("update"), p.handleUpdate); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// AlertTopic returns the topic alerts for hospitalID are published on.
func (p *Publisher) AlertTopic(hospitalID string) string {
	return fmt.Sprintf("%s/%s/alerts", p.prefix, hospitalID)
}

// StatusTopic returns the retained status topic of hospitalID.
func (p *Publisher) StatusTopic(hospitalID string) string {
	return fmt.Sprintf("%s/%s/status", p.prefix, hospitalID)
}

// UpdateTopic is the wildcard subscription used for inbound updates.
func (p *Publisher) UpdateTopic() string {
	return p.prefix + "/+/update"
}

func (p *Publisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// Notify implements alert.Sink.
func (p *Publisher) Notify(ctx context.Context, hospitalID, message string, severity alert.Severity) error {
	p.mu.Lock()
	now := p.now()
	p.mu.Unlock()
	payload, err := json.Marshal(alert.New(hospitalID, message, severity, now))
	if err != nil {
		return err
	}
	return p.publish(ctx, hospitalID, p.AlertTopic(hospitalID), p.qosFor("alert"), false, payload)
}

// PublishStatus publishes a retained status message for the transition.
func (p *Publisher) PublishStatus(ctx context.Context, ev events.StatusChangeEvent) error {
	msg := struct {
		HospitalID string       `json:"hospital_id"`
		Name       string       `json:"name,omitempty"`
		Status     model.Status `json:"status"`
		Previous   model.Status `json:"previous_status"`
		Load       float64      `json:"predicted_load"`
		Timestamp  int64        `json:"timestamp"`
	}{
		HospitalID: ev.HospitalID,
		Name:       ev.Name,
		Status:     ev.To,
		Previous:   ev.From,
		Load:       ev.Load,
		Timestamp:  ev.Time.UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, ev.HospitalID, p.StatusTopic(ev.HospitalID), p.qosFor("status"), true, payload)
}

func (p *Publisher) publish(ctx context.Context, hospitalID, topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
retry:
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published to %s", topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			break retry
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{"hospital_id": hospitalID, "module": "mqtt"})
	return fmt.Errorf("mqtt: publish %s: %w", topic, publishErr)
}

func (p *Publisher) hospitalFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, p.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/update")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (p *Publisher) handleUpdate(_ paho.Client, msg paho.Message) {
	id, ok := p.hospitalFromTopic(msg.Topic())
	if !ok {
		p.logger.Warnf("ignoring update on unexpected topic %s", msg.Topic())
		return
	}
	var u model.HospitalUpdate
	if err := json.Unmarshal(msg.Payload(), &u); err != nil {
		p.logger.Errorf("failed to decode update for %s: %v", id, err)
		return
	}
	if u.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.onUpdate(ctx, id, u); err != nil {
		p.logger.Errorf("apply update for %s: %v", id, err)
		monitoring.CaptureException(err, map[string]string{"hospital_id": id, "module": "mqtt"})
		return
	}
	p.logger.Infof("applied update for %s", id)
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
