package topology

import (
	"strings"

	"synapse/pkg/errors"
)

// StreamConfig describes one logical stream of the bus topology.
// Immutable after load.
type StreamConfig struct {
	Name      string
	Subjects  []string
	Retention string
	Replicas  int
}

// ConsumerConfig describes one durable consumer bound to a stream.
type ConsumerConfig struct {
	DurableName   string
	AckPolicy     string
	FilterSubject string
}

// Manager is the static lookup table of logical topology. It is
// populated once at construction and read-only afterwards, so no
// synchronization is needed. Topology changes require a redeploy.
type Manager struct {
	streams   map[string]StreamConfig
	consumers map[string]map[string]ConsumerConfig
}

func NewManager() *Manager {
	return &Manager{
		streams:   streamDefinitions(),
		consumers: consumerDefinitions(),
	}
}

func (m *Manager) GetStreamConfig(logicalName string) (StreamConfig, error) {
	cfg, ok := m.streams[logicalName]
	if !ok {
		return StreamConfig{}, errors.ErrConfiguration.WithDetail("stream", logicalName)
	}
	return cfg, nil
}

func (m *Manager) GetConsumerConfig(logicalName, consumerName string) (ConsumerConfig, error) {
	stream, ok := m.consumers[logicalName]
	if !ok {
		return ConsumerConfig{}, errors.ErrConfiguration.WithDetail("stream", logicalName)
	}
	cfg, ok := stream[consumerName]
	if !ok {
		return ConsumerConfig{}, errors.ErrConfiguration.
			WithDetail("stream", logicalName).
			WithDetail("consumer", consumerName)
	}
	return cfg, nil
}

// StreamNames returns the logical names of all configured streams.
func (m *Manager) StreamNames() []string {
	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	return names
}

// StreamForSubject resolves the stream whose subject set covers the
// given concrete subject, using NATS-style trailing ".>" wildcards.
func (m *Manager) StreamForSubject(subject string) (StreamConfig, bool) {
	for _, cfg := range m.streams {
		for _, pattern := range cfg.Subjects {
			if SubjectMatches(pattern, subject) {
				return cfg, true
			}
		}
	}
	return StreamConfig{}, false
}

// SubjectMatches reports whether a concrete subject falls under a
// subject pattern. Supported patterns are exact names and prefixes
// ending in ".>".
func SubjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".>"); ok {
		return strings.HasPrefix(subject, prefix+".")
	}
	return false
}
