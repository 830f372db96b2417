package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig holds the connection settings for the NATS bridge
type NATSConfig struct {
	URL           string
	Subject       string // prefix, events go to <Subject>.<roomID>
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the defaults used by the server
func DefaultNATSConfig(url string) NATSConfig {
	if url == "" {
		url = nats.DefaultURL
	}
	return NATSConfig{
		URL:           url,
		Subject:       DefaultChannel,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBridge carries change events between server instances over core NATS
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	sink    Publisher
	logger  *zap.Logger
}

// ConnectNATS dials the server and returns a bridge forwarding into sink
func ConnectNATS(cfg NATSConfig, sink Publisher, logger *zap.Logger) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name("tripsync"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			// messages published while disconnected are gone
			if err := sink.Publish(context.Background(), ChangeEvent{Action: ActionResync, At: time.Now().UTC()}); err != nil {
				logger.Error("Failed to signal resync", zap.Error(err))
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultChannel
	}
	return &NATSBridge{nc: nc, subject: subject, sink: sink, logger: logger}, nil
}

// Publish sends event on the room's subject
func (b *NATSBridge) Publish(_ context.Context, event ChangeEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.roomSubject(event.RoomID), data); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Run forwards every room's events into the sink until ctx is done
func (b *NATSBridge) Run(ctx context.Context) error {
	messages := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(b.subject+".>", messages)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	defer sub.Unsubscribe()

	b.logger.Info("Listening for change events", zap.String("driver", "nats"), zap.String("subject", b.subject+".>"))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("NATS bridge shutting down")
			return nil
		case msg := <-messages:
			event, err := Decode(msg.Data)
			if err != nil {
				b.logger.Error("Invalid change event", zap.String("subject", msg.Subject), zap.Error(err))
				continue
			}
			if err := b.sink.Publish(ctx, event); err != nil {
				b.logger.Error("Failed to forward change event", zap.String("room_id", event.RoomID), zap.Error(err))
			}
		}
	}
}

// Close drains pending messages and closes the connection
func (b *NATSBridge) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}

func (b *NATSBridge) roomSubject(roomID string) string {
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(roomID)
	if token == "" {
		token = "_"
	}
	return b.subject + "." + token
}
