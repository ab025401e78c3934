package models

import (
	"encoding/json"
	"time"
)

// Priority bounds for the wire envelope. 1 is lowest, 10 is highest.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// MessageEnvelope is the wire-level wrapper around every payload moved
// through the bus. Timestamp marshals as RFC 3339.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Priority  int                    `json:"priority"`
}

func (m *MessageEnvelope) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func Unmarshal(raw []byte) (*MessageEnvelope, error) {
	var env MessageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (m *MessageEnvelope) GetDataField(name string) (interface{}, bool) {
	if m.Data == nil {
		return nil, false
	}

	value, ok := m.Data[name]
	return value, ok
}

func (m *MessageEnvelope) SetDataField(name string, value interface{}) {
	if m.Data == nil {
		m.Data = make(map[string]interface{})
	}

	m.Data[name] = value
}
