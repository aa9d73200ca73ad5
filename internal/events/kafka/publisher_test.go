package kafka

import (
	"context"
	"testing"
)

func TestPublishRejectsUnencodableEvent(t *testing.T) {
	p := NewPublisher([]string{"127.0.0.1:1"})
	defer p.Close()

	err := p.Publish(context.Background(), "ledger", "U1", map[string]any{"bad": make(chan int)})
	if err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestNewPublisherLeavesTopicPerMessage(t *testing.T) {
	p := NewPublisher([]string{"a:9092", "b:9092"})
	defer p.Close()

	if p.writer.Addr == nil {
		t.Fatal("expected broker address")
	}
	if p.writer.Topic != "" {
		t.Fatalf("writer must not pin a topic, got %q", p.writer.Topic)
	}
}
