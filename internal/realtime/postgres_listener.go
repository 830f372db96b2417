package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ListenerConfig configures the Postgres LISTEN/NOTIFY bridge
type ListenerConfig struct {
	DatabaseURL          string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// DefaultListenerConfig returns the defaults used by the server
func DefaultListenerConfig(databaseURL string) ListenerConfig {
	return ListenerConfig{
		DatabaseURL:          databaseURL,
		Channel:              DefaultChannel,
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// PostgresListener forwards notifications raised by the spots and votes
// triggers into a Publisher
type PostgresListener struct {
	listener *pq.Listener
	sink     Publisher
	cfg      ListenerConfig
	logger   *zap.Logger
}

// NewPostgresListener opens a dedicated LISTEN connection on cfg.Channel
func NewPostgresListener(cfg ListenerConfig, sink Publisher, logger *zap.Logger) (*PostgresListener, error) {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}

	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("Postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	logger.Info("Listening for change notifications", zap.String("channel", cfg.Channel))

	return &PostgresListener{
		listener: l,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run forwards notifications until ctx is done
func (l *PostgresListener) Run(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Postgres listener shutting down")
			return nil
		case note, ok := <-l.listener.Notify:
			if !ok {
				return nil
			}
			if note == nil {
				// connection was re-established; anything sent meanwhile is lost
				l.publish(ctx, ChangeEvent{Action: ActionResync, At: time.Now().UTC()})
				continue
			}
			event, err := Decode([]byte(note.Extra))
			if err != nil {
				l.logger.Error("Invalid change notification", zap.String("payload", note.Extra), zap.Error(err))
				continue
			}
			l.publish(ctx, event)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Error("Failed to ping listener", zap.Error(err))
			}
		}
	}
}

// Close releases the LISTEN connection
func (l *PostgresListener) Close() error {
	return l.listener.Close()
}

func (l *PostgresListener) publish(ctx context.Context, event ChangeEvent) {
	if err := l.sink.Publish(ctx, event); err != nil {
		l.logger.Error("Failed to forward change event",
			zap.String("room_id", event.RoomID),
			zap.String("action", string(event.Action)),
			zap.Error(err))
	}
}
