package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const EventApartmentsAvailable = "apartments.available"

// Event is the message body published for every non-empty delta.
type Event struct {
	Type       string               `json:"type"`
	DetectedAt time.Time            `json:"detected_at"`
	Apartments []*crawler.Apartment `json:"apartments"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes availability events to a durable RabbitMQ queue.
type AMQPNotifier struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	publisher publisher
	queue     string
	now       func() time.Time
}

// DialAMQP connects to the broker and declares the queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Wrapf(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, oops.Wrapf(err, "open rabbitmq channel")
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, oops.Wrapf(err, "declare queue %s", queue)
	}
	n := newAMQPNotifier(ch, q.Name)
	n.conn = conn
	n.channel = ch
	return n, nil
}

func newAMQPNotifier(p publisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{publisher: p, queue: queue, now: time.Now}
}

func (n *AMQPNotifier) Name() string { return "amqp" }

func (n *AMQPNotifier) Notify(ctx context.Context, delta crawler.Snapshot) error {
	if len(delta) == 0 {
		return nil
	}
	event := Event{
		Type:       EventApartmentsAvailable,
		DetectedAt: n.now().UTC(),
		Apartments: make([]*crawler.Apartment, 0, len(delta)),
	}
	for _, id := range delta.IDs() {
		event.Apartments = append(event.Apartments, delta[id])
	}
	body, err := json.Marshal(event)
	if err != nil {
		return oops.Wrapf(err, "marshal availability event")
	}

	err = n.publisher.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.DetectedAt,
		Type:         EventApartmentsAvailable,
		Body:         body,
	})
	if err != nil {
		return oops.Wrapf(err, "publish to queue %s", n.queue)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
