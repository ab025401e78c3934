package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageEnvelopeBuilder struct {
	envelope *MessageEnvelope
}

func NewMessageEnvelopeBuilder() *MessageEnvelopeBuilder {
	return &MessageEnvelopeBuilder{
		envelope: &MessageEnvelope{
			Data:     make(map[string]interface{}),
			Priority: DefaultPriority,
		},
	}
}

func (b *MessageEnvelopeBuilder) WithID(id string) *MessageEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *MessageEnvelopeBuilder) WithType(msgType string) *MessageEnvelopeBuilder {
	b.envelope.Type = msgType
	return b
}

func (b *MessageEnvelopeBuilder) WithSource(source string) *MessageEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *MessageEnvelopeBuilder) WithTimestamp(timestamp time.Time) *MessageEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *MessageEnvelopeBuilder) WithData(data map[string]interface{}) *MessageEnvelopeBuilder {
	b.envelope.Data = data
	return b
}

func (b *MessageEnvelopeBuilder) WithDataField(name string, value interface{}) *MessageEnvelopeBuilder {
	b.envelope.SetDataField(name, value)
	return b
}

func (b *MessageEnvelopeBuilder) WithPriority(priority int) *MessageEnvelopeBuilder {
	b.envelope.Priority = priority
	return b
}

// Build fills in a generated ID and the current time when the caller
// did not set them.
func (b *MessageEnvelopeBuilder) Build() *MessageEnvelope {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now().UTC()
	}
	return b.envelope
}
