package rabbitmq

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQClient struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitMQClient(amqpURL string, mainQueueNames []string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		err2 := conn.Close()
		if err2 != nil {
			slog.Error("error occurred while closing connection", "error", err2.Error())
		}

		return nil, err
	}

	client := &RabbitMQClient{
		conn:     conn,
		channel:  ch,
		declared: map[string]bool{},
	}
	err = client.checkMainQueueDeclarations(mainQueueNames)
	if err != nil {
		slog.Error("Error while checking declarations of main queues", "error", err.Error())
		return nil, err
	}

	return client, nil
}

// PublishMessage publishes a persistent JSON message to queueName through the default exchange
func (c *RabbitMQClient) PublishMessage(ctx context.Context, queueName, body string) (err error) {
	err = c.checkQueueDeclaration(queueName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(body),
		})
}

// ConsumeMessages auto-acknowledges deliveries: a message is attempted at most once.
// The handler runs until ctx is cancelled or the channel is closed.
func (c *RabbitMQClient) ConsumeMessages(ctx context.Context, consumerName, queueName string, handler func(string)) error {
	err := c.checkQueueDeclaration(queueName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	msgs, err := c.channel.ConsumeWithContext(
		ctx,
		queueName,    // queue
		consumerName, // consumer
		true,         // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	c.mu.Unlock()

	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			handler(string(d.Body))
		}
		slog.Info("RabbitMQ consumer stopped", "consumer_name", consumerName, "queue_name", queueName)
	}()

	return nil
}

func (c *RabbitMQClient) Close() error {
	err := c.channel.Close()
	if err != nil {
		return err
	}

	err = c.conn.Close()
	return err
}

func (c *RabbitMQClient) IsHealthy() bool {
	if c.conn.IsClosed() {
		slog.Error("RabbitMQ connection is closed, Rabbit is not healthy")
		return false
	}

	ch, err := c.conn.Channel()
	if err != nil {
		slog.Error("Failed to open RabbitMQ channel, Rabbit is not healthy", "error", err)
		return false
	}
	defer func() {
		err = ch.Close()
		if err != nil {
			slog.Error("Error occurred while closing rabbit channel created for health check", "error", err.Error())
		}
	}()

	return true
}

func (c *RabbitMQClient) checkMainQueueDeclarations(mainQueueNames []string) (err error) {
	for _, queueName := range mainQueueNames {
		err = c.checkQueueDeclaration(queueName)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *RabbitMQClient) checkQueueDeclaration(queueName string) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.declared[queueName] {
		return nil
	}

	_, err = c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		// A failed declaration closes the channel on the broker side.
		err2 := c.conn.Close()
		if err2 != nil {
			slog.Error("error occurred while closing connection", "error", err2.Error())
		}

		return err
	}

	c.declared[queueName] = true
	return nil
}
