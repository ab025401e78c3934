package validator

// Message type identifiers with registered sub-schemas. Types not
// listed here pass once the top-level envelope checks succeed.
const (
	TypeStateChange   = "consciousness.state_change"
	TypeEmotionUpdate = "consciousness.emotion_update"
	TypeTaskDispatch  = "orchestrator.task_dispatch"
	TypeHealthCheck   = "system.health_check"
)

func builtinSchemas() map[string]subSchema {
	return map[string]subSchema{
		TypeStateChange:   validateStateChange,
		TypeEmotionUpdate: validateEmotionUpdate,
		TypeTaskDispatch:  validateTaskDispatch,
		TypeHealthCheck:   validateHealthCheck,
	}
}

func validateStateChange(data map[string]interface{}) []FieldError {
	level, ok := data["consciousness_level"].(float64)
	if !ok {
		return []FieldError{{Field: "data.consciousness_level", Reason: "missing or not a number"}}
	}
	if level < 0 || level > 1 {
		return []FieldError{{Field: "data.consciousness_level", Reason: "must be between 0 and 1"}}
	}
	return nil
}

func validateEmotionUpdate(data map[string]interface{}) []FieldError {
	var errs []FieldError

	emotion, ok := data["emotion"].(string)
	if !ok || emotion == "" {
		errs = append(errs, FieldError{Field: "data.emotion", Reason: "missing or not a non-empty string"})
	}

	// intensity is optional but must be in range when present
	if raw, present := data["intensity"]; present {
		intensity, ok := raw.(float64)
		if !ok {
			errs = append(errs, FieldError{Field: "data.intensity", Reason: "not a number"})
		} else if intensity < 0 || intensity > 1 {
			errs = append(errs, FieldError{Field: "data.intensity", Reason: "must be between 0 and 1"})
		}
	}

	return errs
}

func validateTaskDispatch(data map[string]interface{}) []FieldError {
	taskID, ok := data["task_id"].(string)
	if !ok || taskID == "" {
		return []FieldError{{Field: "data.task_id", Reason: "missing or not a non-empty string"}}
	}
	return nil
}

func validateHealthCheck(data map[string]interface{}) []FieldError {
	component, ok := data["component"].(string)
	if !ok || component == "" {
		return []FieldError{{Field: "data.component", Reason: "missing or not a non-empty string"}}
	}
	return nil
}
