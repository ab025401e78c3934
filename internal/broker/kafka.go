package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"synapse/internal/config"
	"synapse/internal/constants"
	"synapse/internal/logger"
	"synapse/pkg/errors"
	"synapse/pkg/logging"
	"synapse/pkg/metrics"
	"synapse/pkg/tracing"
)

// KafkaTransport moves raw envelope bytes over Kafka topics. Subjects
// map one-to-one onto topic names.
type KafkaTransport struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
	logger logger.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewKafkaTransport(cfg config.KafkaConfig, log logger.Logger) *KafkaTransport {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaTransport{cfg: cfg, writer: w, logger: log}
}

func (t *KafkaTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	start := time.Now()

	headers := tracing.InjectTraceContext(ctx, nil)

	err := t.writer.WriteMessages(ctx, kafka.Message{
		Topic:   subject,
		Key:     messageKey(payload),
		Value:   payload,
		Headers: headers,
		Time:    time.Now(),
	})

	metrics.ObserveTransportWrite(subject, time.Since(start))

	if err != nil {
		return errors.ErrTransport.WithCause(err).WithDetail("subject", subject)
	}
	return nil
}

// messageKey extracts the envelope id so all attempts for one message
// land on the same partition. Falls back to an empty key.
func messageKey(payload []byte) []byte {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.ID == "" {
		return nil
	}
	return []byte(probe.ID)
}

func (t *KafkaTransport) Subscribe(ctx context.Context, subject string, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		GroupID:  t.cfg.GroupID,
		Topic:    subject,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	t.mu.Lock()
	t.readers = append(t.readers, reader)
	t.mu.Unlock()

	t.logger.InfowCtx(ctx, "Started consuming",
		"subject", subject,
		"brokers", t.cfg.Brokers,
		"group_id", t.cfg.GroupID,
	)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					t.logger.InfowCtx(ctx, "Stopped consuming",
						"subject", subject,
						"reason", "context canceled",
					)
					return
				}
				t.logger.ErrorwCtx(ctx, "Error fetching kafka message",
					"error", err,
					"subject", subject,
				)
				time.Sleep(time.Second)
				continue
			}

			metrics.TransportMessagesReadTotal.WithLabelValues(subject).Inc()

			msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "bus.consume", m.Headers)
			msgCtx = logging.WithSubject(msgCtx, subject)

			if err := t.handle(msgCtx, subject, m.Value, handler); err != nil {
				t.logger.ErrorwCtx(msgCtx, "Handler failed, message will be redelivered",
					"error", err,
					"subject", subject,
				)
				span.End()
				continue
			}
			span.End()

			if err := reader.CommitMessages(ctx, m); err != nil {
				t.logger.ErrorwCtx(msgCtx, "Failed to commit message",
					"error", err,
					"subject", subject,
				)
			}
		}
	}()

	return nil
}

func (t *KafkaTransport) handle(ctx context.Context, subject string, payload []byte, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			t.logger.ErrorwCtx(ctx, "Panic recovered during message handling",
				"error", err,
				"subject", subject,
			)
		}
	}()
	return handler(ctx, subject, payload)
}

func (t *KafkaTransport) Close() error {
	err := t.writer.Close()

	t.mu.Lock()
	readers := t.readers
	t.readers = nil
	t.mu.Unlock()

	for _, r := range readers {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	t.wg.Wait()
	return err
}
