package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ publisher configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Publisher is a publish-only RabbitMQ client. Consumers of the exchange
// declare and bind their own queues.
type Publisher struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	isConnected bool
}

// NewPublisher connects to RabbitMQ and declares the exchange.
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		config: config,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ publisher: %w", err)
	}

	return p, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (p *Publisher) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.config.User,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: p.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		p.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		p.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		p.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(p.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.config.ExchangeName,
		p.config.ExchangeType,
		p.config.ExchangeDurable,
		p.config.ExchangeAutoDelete,
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		p.channel.Close()
		p.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.isConnected = true

	p.logger.Info("RabbitMQ publisher initialized",
		slog.String("exchange", p.config.ExchangeName),
	)

	return nil
}

// PublishWithRetry publishes a message with the given routing key, retrying
// with exponential backoff on failure.
func (p *Publisher) PublishWithRetry(ctx context.Context, routingKey string, body []byte) error {
	if !p.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	maxRetries := p.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := p.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := p.channel.PublishWithContext(
			ctx,
			p.config.ExchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)

		if err == nil {
			p.logger.Debug("Message published to RabbitMQ",
				slog.String("routing_key", routingKey),
				slog.Int("body_size", len(body)),
			)
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			backoffDelay := time.Duration(float64(baseDelay) * float64(uint(1)<<uint(attempt)))
			p.logger.Warn("Failed to publish message to RabbitMQ, retrying",
				slog.String("routing_key", routingKey),
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)
			time.Sleep(backoffDelay)
		}
	}

	p.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.String("routing_key", routingKey),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// IsConnected returns the connection status
func (p *Publisher) IsConnected() bool {
	return p.isConnected && p.conn != nil && !p.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (p *Publisher) Close() error {
	p.logger.Info("Closing RabbitMQ connection")

	p.isConnected = false

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
