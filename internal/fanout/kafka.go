// Package fanout carries a newly inserted assignment out to a broadcast
// topic and an optional per-match DM topic, implementing worker.Broadcaster
// and worker.DMNotifier over Kafka.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tutordex/core/internal/model"
)

// Writer is the subset of *kafka.Writer this package depends on, named so
// tests can substitute an in-memory recorder instead of dialing brokers.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaFanout publishes one message per inserted assignment to a broadcast
// topic, and (when DMTopic is set) a second message to a DM topic for
// downstream per-tutor matching. Keyed by "<agency_ref>:<external_id>" so a
// topic compacted on that key keeps only the latest copy of each assignment.
type KafkaFanout struct {
	broadcastWriter Writer
	dmWriter        Writer
}

// NewKafkaFanout dials brokers (comma-separated list already split by the
// caller) and builds writers for broadcastTopic and, if non-empty,
// dmTopic.
func NewKafkaFanout(brokers []string, broadcastTopic, dmTopic string) (*KafkaFanout, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("fanout: no kafka brokers configured")
	}
	if broadcastTopic == "" {
		return nil, fmt.Errorf("fanout: broadcast topic is required")
	}
	addr := kafka.TCP(brokers...)

	f := &KafkaFanout{
		broadcastWriter: &kafka.Writer{
			Addr:         addr,
			Topic:        broadcastTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
	if dmTopic != "" {
		f.dmWriter = &kafka.Writer{
			Addr:         addr,
			Topic:        dmTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		}
	}
	return f, nil
}

func (f *KafkaFanout) Broadcast(ctx context.Context, a model.Assignment) error {
	return f.write(ctx, f.broadcastWriter, a)
}

func (f *KafkaFanout) NotifyDM(ctx context.Context, a model.Assignment) error {
	if f.dmWriter == nil {
		return nil
	}
	return f.write(ctx, f.dmWriter, a)
}

func (f *KafkaFanout) write(ctx context.Context, w Writer, a model.Assignment) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("fanout: marshal assignment: %w", err)
	}
	key := strings.TrimSpace(a.AgencyRef + ":" + a.ExternalID)
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

func (f *KafkaFanout) Close() error {
	var errs []error
	if err := f.broadcastWriter.Close(); err != nil {
		errs = append(errs, err)
	}
	if f.dmWriter != nil {
		if err := f.dmWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("fanout: close: %v", errs)
	}
	return nil
}
