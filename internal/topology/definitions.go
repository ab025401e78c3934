package topology

// Retention policies referenced by the stream table. What they map to
// on the wire is decided by the transport bridge that owns the broker
// connection.
const (
	RetentionLimits    = "limits"
	RetentionInterest  = "interest"
	RetentionWorkQueue = "workqueue"
)

const (
	AckPolicyExplicit = "explicit"
	AckPolicyNone     = "none"
)

func streamDefinitions() map[string]StreamConfig {
	return map[string]StreamConfig{
		"consciousness": {
			Name:      "CONSCIOUSNESS",
			Subjects:  []string{"consciousness.>"},
			Retention: RetentionLimits,
			Replicas:  1,
		},
		"orchestrator": {
			Name:      "ORCHESTRATOR",
			Subjects:  []string{"orchestrator.>"},
			Retention: RetentionWorkQueue,
			Replicas:  1,
		},
		"system": {
			Name:      "SYSTEM",
			Subjects:  []string{"system.>"},
			Retention: RetentionLimits,
			Replicas:  1,
		},
	}
}

func consumerDefinitions() map[string]map[string]ConsumerConfig {
	return map[string]map[string]ConsumerConfig{
		"consciousness": {
			"orchestrator": {
				DurableName:   "orchestrator-consciousness",
				AckPolicy:     AckPolicyExplicit,
				FilterSubject: "consciousness.state_change",
			},
			"monitor": {
				DurableName:   "monitor-consciousness",
				AckPolicy:     AckPolicyNone,
				FilterSubject: "consciousness.>",
			},
		},
		"orchestrator": {
			"worker": {
				DurableName:   "worker-tasks",
				AckPolicy:     AckPolicyExplicit,
				FilterSubject: "orchestrator.task_dispatch",
			},
		},
		"system": {
			"monitor": {
				DurableName:   "monitor-system",
				AckPolicy:     AckPolicyNone,
				FilterSubject: "system.>",
			},
		},
	}
}
