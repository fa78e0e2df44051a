package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"climate-api/internal/config"
	"climate-api/internal/modules/climate/repository"
	"climate-api/internal/modules/climate/service"
	"climate-api/internal/modules/climate/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const handlerTimeout = 5 * time.Second

// Message is the JSON payload published on the measurement topic.
type Message struct {
	Station string   `json:"station"`
	Date    string   `json:"date"`
	Prcp    *float64 `json:"prcp"`
	Tobs    *float64 `json:"tobs"`
}

// MeasurementHandler receives each decoded and validated measurement.
type MeasurementHandler func(ctx context.Context, m types.Measurement) error

// StoreMeasurements returns a handler that appends measurements via w.
func StoreMeasurements(w repository.ClimateWriter) MeasurementHandler {
	return func(ctx context.Context, m types.Measurement) error {
		id, err := w.InsertMeasurement(ctx, m)
		if err != nil {
			return err
		}
		slog.Debug("measurement stored", "id", id, "station", m.Station, "date", m.Date)
		return nil
	}
}

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	handler   MeasurementHandler
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg config.Config, logger *slog.Logger, handler MeasurementHandler) *Subscriber {
	s := &Subscriber{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		stopCh:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Clean sessions drop subscriptions, so resubscribe on every (re)connect.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect blocks until the broker accepts the connection, ctx is done or
// the subscriber is stopped.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

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
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errors.New("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	m, err := DecodeMessage(payload)
	if err != nil {
		s.logger.Warn("invalid measurement message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if s.handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := s.handler(ctx, m); err != nil {
		s.logger.Error("measurement handler failed",
			"topic", topic,
			"station", m.Station,
			"date", m.Date,
			"error", err,
		)
	}
}

// DecodeMessage parses and validates a measurement payload.
func DecodeMessage(payload []byte) (types.Measurement, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return types.Measurement{}, fmt.Errorf("decode: %w", err)
	}
	if msg.Station == "" {
		return types.Measurement{}, errors.New("station is required")
	}
	if err := service.ValidateDate(msg.Date); err != nil {
		return types.Measurement{}, err
	}
	if msg.Tobs == nil {
		return types.Measurement{}, errors.New("tobs is required")
	}
	if msg.Prcp != nil && *msg.Prcp < 0 {
		return types.Measurement{}, fmt.Errorf("prcp must not be negative: %v", *msg.Prcp)
	}
	return types.Measurement{
		Station: msg.Station,
		Date:    msg.Date,
		Prcp:    msg.Prcp,
		Tobs:    *msg.Tobs,
	}, nil
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber. Safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
