package notify

import (
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes notifications as JSON messages to a RabbitMQ
// exchange bound to a durable queue.
type AMQPNotifier struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

type amqpMessage struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

func NewAMQPNotifier(url, exchange, queue, routingKey string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPNotifier{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (n *AMQPNotifier) Send(subject, body string) error {
	payload, err := json.Marshal(amqpMessage{
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.channel.Publish(
		n.exchange,
		n.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		},
	)
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		_ = n.conn.Close()
		return err
	}
	return n.conn.Close()
}
