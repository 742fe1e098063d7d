package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/erbalance/core/alert"
	"github.com/kilianp07/erbalance/core/events"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/infra/logger"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error for missing files")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.TopicPrefix != "hospital" || cfg.MaxRetries != 3 || cfg.BackoffMS != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.ClientID) != len("erbalance-")+8 {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
}

func TestNotifyPublishesAlert(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: map[string]byte{"alert": 1}}
	cli, err := NewPublisher(cfg, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	cli.now = func() time.Time { return fixed }
	if err := cli.Notify(context.Background(), "H001", "Notify KEM Hospital", alert.SeverityCritical); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(mc.published))
	}
	got := mc.published[0]
	if got.topic != "hospital/H001/alerts" || got.qos != 1 || got.retained {
		t.Fatalf("unexpected publish %+v", got)
	}
	var a alert.Alert
	if err := json.Unmarshal(got.payload, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.HospitalID != "H001" || a.Severity != alert.SeverityCritical || a.ID == "" || !a.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected alert %+v", a)
	}
	if len(mc.subscribed) != 0 {
		t.Fatalf("no subscription expected without update handler")
	}
}

func TestPublishStatusRetained(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPublisher(Config{Broker: "tcp://localhost:1883", TopicPrefix: "er/"}, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ev := events.StatusChangeEvent{HospitalID: "H002", From: model.StatusYellow, To: model.StatusRed, Load: 160, Time: time.Unix(10, 0)}
	if err := cli.PublishStatus(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := mc.published[0]
	if got.topic != "er/H002/status" || !got.retained {
		t.Fatalf("unexpected publish %+v", got)
	}
	var m map[string]any
	if err := json.Unmarshal(got.payload, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["status"] != "Red" || m["previous_status"] != "Yellow" || m["timestamp"] != float64(10000) {
		t.Fatalf("unexpected payload %v", m)
	}
}

func TestUpdateSubscription(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	type call struct {
		id string
		u  model.HospitalUpdate
	}
	var calls []call
	handler := func(_ context.Context, id string, u model.HospitalUpdate) error {
		calls = append(calls, call{id, u})
		return nil
	}
	cfg := Config{Broker: "tcp://localhost:1883", IngestUpdates: true, QoS: map[string]byte{"update": 2}}
	cli, err := NewPublisher(cfg, handler, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != "hospital/+/update" || mc.subscribed[0].qos != 2 {
		t.Fatalf("unexpected subscriptions %+v", mc.subscribed)
	}
	cli.handleUpdate(nil, mockMessage{topic: "hospital/H003/update", p: []byte(`{"bed_availability":12}`)})
	cli.handleUpdate(nil, mockMessage{topic: "hospital/H003/update", p: []byte(`{}`)})
	cli.handleUpdate(nil, mockMessage{topic: "hospital/H003/update", p: []byte(`not json`)})
	cli.handleUpdate(nil, mockMessage{topic: "other/H003/update", p: []byte(`{"bed_availability":1}`)})
	cli.handleUpdate(nil, mockMessage{topic: "hospital/a/b/update", p: []byte(`{"bed_availability":1}`)})
	if len(calls) != 1 {
		t.Fatalf("expected one applied update, got %d", len(calls))
	}
	if calls[0].id != "H003" || calls[0].u.BedAvailability == nil || *calls[0].u.BedAvailability != 12 {
		t.Fatalf("unexpected update %+v", calls[0])
	}
}

func TestIngestDisabledSkipsSubscribe(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	handler := func(context.Context, string, model.HospitalUpdate) error { return nil }
	if _, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}, handler, logger.NopLogger{}); err != nil {
		t.Fatalf("client: %v", err)
	}
	if len(mc.subscribed) != 0 {
		t.Fatalf("unexpected subscription")
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	cli, err := NewPublisher(cfg, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	cli.Disconnect()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	cli, err := NewPublisher(cfg, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Notify(context.Background(), "H001", "m", alert.SeverityInfo); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("a"), fmt.Errorf("b"), fmt.Errorf("c")}}
	withMock(t, mc)
	cli, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1000}, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = cli.Notify(ctx, "H001", "m", alert.SeverityInfo)
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(mc.published))
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
