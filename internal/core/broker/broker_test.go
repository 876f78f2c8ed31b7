package broker

import (
	"context"
	"testing"
)

func TestConstructorsRejectIncompleteConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(PublisherConfig{ExchangeName: "x"}, nil); err == nil {
		t.Error("publisher without URL should fail")
	}
	if _, err := NewPublisher(PublisherConfig{URL: "amqp://localhost"}, nil); err == nil {
		t.Error("publisher without exchange should fail")
	}
	if _, err := NewConsumer(ConsumerConfig{URL: "amqp://localhost"}, func(context.Context, []byte) (bool, error) { return false, nil }, nil); err == nil {
		t.Error("consumer without queue should fail")
	}
	if _, err := NewConsumer(ConsumerConfig{URL: "amqp://localhost", QueueName: "q"}, nil, nil); err == nil {
		t.Error("consumer without handler should fail")
	}
}
