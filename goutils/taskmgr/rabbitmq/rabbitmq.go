package taskmgr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"storage-dashboard/goutils/settings"
	"storage-dashboard/goutils/taskmgr"
)

type RabbitmqTaskMgr struct {
	conn     *amqp.Connection
	settings *settings.SettingsObj

	mu      sync.Mutex
	channel *amqp.Channel
}

var _ taskmgr.TaskMgr = (*RabbitmqTaskMgr)(nil)

func NewRabbitmqTaskMgr(settings *settings.SettingsObj) (*RabbitmqTaskMgr, error) {
	conn, err := Dial(settings)
	if err != nil {
		return nil, err
	}

	return &RabbitmqTaskMgr{
		conn:     conn,
		settings: settings,
	}, nil
}

// getChannel returns a channel from the connection
// this method is also used to create a new channel if channel is closed
func (r *RabbitmqTaskMgr) getChannel() (*amqp.Channel, error) {
	if r.channel != nil {
		return r.channel, nil
	}

	channel, err := r.conn.Channel()
	if err != nil {
		log.Errorf("Failed to open a channel on rabbitmq: %v", err)

		return nil, taskmgr.ErrPublisherInitFailed
	}

	err = channel.ExchangeDeclare(r.settings.Rabbitmq.Setup.Core.Exchange, "direct", true, false, false, false, nil)
	if err != nil {
		log.Errorf("Failed to declare an exchange on rabbitmq: %v", err)

		return nil, taskmgr.ErrPublisherInitFailed
	}

	closed := make(chan *amqp.Error, 1)
	channel.NotifyClose(closed)

	go func() {
		amqpErr := <-closed
		if amqpErr != nil {
			log.WithField("reason", amqpErr.Reason).Warn("rabbitmq channel closed, reopening on next publish")
		}

		r.mu.Lock()
		r.channel = nil
		r.mu.Unlock()
	}()

	r.channel = channel

	return channel, nil
}

func (r *RabbitmqTaskMgr) Publish(ctx context.Context, topic taskmgr.Topic, body []byte) error {
	routingKey, err := r.getRoutingKey(topic)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channel, err := r.getChannel()
	if err != nil {
		return err
	}

	err = channel.Publish(r.settings.Rabbitmq.Setup.Core.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		log.WithError(err).WithField("topic", topic).Error("failed to publish message on rabbitmq")

		return fmt.Errorf("%w: %s", taskmgr.ErrPublishFailed, err.Error())
	}

	return nil
}

func (r *RabbitmqTaskMgr) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		err := r.channel.Close()
		if err != nil && err != amqp.ErrClosed {
			log.Errorf("Failed to close channel on rabbitmq: %v", err)
		}
	}

	err := r.conn.Close()
	if err != nil && err != amqp.ErrClosed {
		log.Errorf("Failed to close connection on rabbitmq: %v", err)

		return err
	}

	return nil
}

func Dial(config *settings.SettingsObj) (*amqp.Connection, error) {
	url := ConnectionURL(config.Rabbitmq)

	conn, err := amqp.Dial(url)
	if err != nil {
		log.WithError(err).Error("Failed to connect to RabbitMQ")

		return nil, taskmgr.ErrPublisherInitFailed
	}

	return conn, nil
}

func ConnectionURL(rabbitmqConfig *settings.Rabbitmq) string {
	return fmt.Sprintf("amqp://%s:%s@%s/", rabbitmqConfig.User, rabbitmqConfig.Password, net.JoinHostPort(rabbitmqConfig.Host, strconv.Itoa(rabbitmqConfig.Port)))
}

func (r *RabbitmqTaskMgr) getRoutingKey(topic taskmgr.Topic) (string, error) {
	switch topic {
	case taskmgr.TopicAuditCompleted:
		return r.settings.Rabbitmq.Setup.AuditEvents.RoutingKey, nil
	default:
		return "", taskmgr.ErrUnknownTopic
	}
}
