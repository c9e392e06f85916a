package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-pdr/internal/protocol"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

const (
	mqttBufferSize     = 256
	mqttConnectTimeout = 10 * time.Second
)

// MQTTConfig configures the MQTT feed
type MQTTConfig struct {
	Broker        string
	ClientID      string
	AccelTopic    string
	RotationTopic string
	QoS           byte
}

// MQTTSource subscribes to acceleration and rotation-vector topics. Payloads
// are the JSON bodies of protocol.SampleData and protocol.RotationData.
type MQTTSource struct {
	cfg    MQTTConfig
	logger *slog.Logger
	client mqtt.Client

	samples chan tracker.Sample
	closed  chan struct{}
	once    sync.Once

	received atomic.Int64
	dropped  atomic.Int64
	invalid  atomic.Int64
}

// NewMQTTSource creates an unconnected source
func NewMQTTSource(cfg MQTTConfig, logger *slog.Logger) *MQTTSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &MQTTSource{
		cfg:     cfg,
		logger:  logger,
		samples: make(chan tracker.Sample, mqttBufferSize),
		closed:  make(chan struct{}),
	}
}

// Connect dials the broker and subscribes. Subscriptions are renewed on
// every reconnect.
func (s *MQTTSource) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			if err := s.subscribe(c); err != nil {
				s.logger.Error("mqtt subscribe failed", "error", err)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", "broker", s.cfg.Broker, "error", err)
		})

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.Broker, err)
	}

	s.logger.Info("connected to mqtt broker",
		"broker", s.cfg.Broker,
		"accel_topic", s.cfg.AccelTopic,
		"rotation_topic", s.cfg.RotationTopic,
	)
	return nil
}

func (s *MQTTSource) subscribe(c mqtt.Client) error {
	filters := map[string]byte{
		s.cfg.AccelTopic:    s.cfg.QoS,
		s.cfg.RotationTopic: s.cfg.QoS,
	}

	token := c.SubscribeMultiple(filters, s.handle)
	token.Wait()
	return token.Error()
}

// handle decodes one message and queues it. A full queue drops the sample.
func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	sample, err := s.decode(msg.Topic(), msg.Payload())
	if err != nil {
		s.invalid.Add(1)
		s.logger.Debug("mqtt payload rejected", "topic", msg.Topic(), "error", err)
		return
	}

	s.received.Add(1)

	select {
	case <-s.closed:
	case s.samples <- sample:
	default:
		s.dropped.Add(1)
	}
}

func (s *MQTTSource) decode(topic string, payload []byte) (tracker.Sample, error) {
	switch topic {
	case s.cfg.AccelTopic:
		var d protocol.SampleData
		if err := json.Unmarshal(payload, &d); err != nil {
			return tracker.Sample{}, fmt.Errorf("decode accel: %w", err)
		}
		ts := d.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		return tracker.AccelSample(d.Vector(), ts), nil

	case s.cfg.RotationTopic:
		var d protocol.RotationData
		if err := json.Unmarshal(payload, &d); err != nil {
			return tracker.Sample{}, fmt.Errorf("decode rotation: %w", err)
		}
		return tracker.RotationSample(d.Quaternion(), time.Now().UnixMilli()), nil
	}

	return tracker.Sample{}, fmt.Errorf("unexpected topic %q", topic)
}

// Next blocks until a sample arrives, ctx is done or the source is closed.
func (s *MQTTSource) Next(ctx context.Context) (tracker.Sample, error) {
	select {
	case <-ctx.Done():
		return tracker.Sample{}, ctx.Err()
	case <-s.closed:
		return tracker.Sample{}, tracker.ErrSourceClosed
	case sample := <-s.samples:
		return sample, nil
	}
}

// Close disconnects from the broker
func (s *MQTTSource) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if s.client != nil {
			s.client.Disconnect(250)
		}
	})
	return nil
}

// Healthy returns true while the broker connection is up
func (s *MQTTSource) Healthy() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

// Name returns the source type name
func (s *MQTTSource) Name() string {
	return "mqtt"
}

// Stats returns feed counters
func (s *MQTTSource) Stats() MQTTStats {
	return MQTTStats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Invalid:  s.invalid.Load(),
	}
}

// MQTTStats contains feed counters
type MQTTStats struct {
	Received int64 `json:"received"`
	Dropped  int64 `json:"dropped"`
	Invalid  int64 `json:"invalid"`
}
