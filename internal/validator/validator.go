package validator

import (
	"encoding/json"
	"math"
	"time"

	"synapse/pkg/errors"
	"synapse/pkg/models"
)

// PayloadField is the pseudo field name reported when the raw payload
// cannot be parsed at all.
const PayloadField = "<payload>"

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationResult is a pure value: Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid  bool         `json:"is_valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Err converts a failed result into a coded validation error carrying
// the field errors as details. Returns nil for a valid result.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.ErrValidation.WithDetail("fields", r.Errors)
}

type subSchema func(data map[string]interface{}) []FieldError

// Validator checks candidate envelopes before anything else touches
// them. Stateless and safe for concurrent use after construction.
type Validator struct {
	schemas map[string]subSchema
}

func New() *Validator {
	return &Validator{schemas: builtinSchemas()}
}

// Validate parses raw as a JSON envelope and checks the required
// top-level fields, then the type-specific sub-schema when one is
// registered for the envelope type. Deterministic, no side effects.
func (v *Validator) Validate(subject string, raw []byte) ValidationResult {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invalid(FieldError{Field: PayloadField, Reason: "malformed"})
	}

	var errs []FieldError

	if s, ok := stringField(doc, "id"); !ok {
		errs = append(errs, FieldError{Field: "id", Reason: "missing or not a string"})
	} else if s == "" {
		errs = append(errs, FieldError{Field: "id", Reason: "must be non-empty"})
	}

	msgType, ok := stringField(doc, "type")
	if !ok {
		errs = append(errs, FieldError{Field: "type", Reason: "missing or not a string"})
	}

	if _, ok := stringField(doc, "source"); !ok {
		errs = append(errs, FieldError{Field: "source", Reason: "missing or not a string"})
	}

	if ts, ok := stringField(doc, "timestamp"); !ok {
		errs = append(errs, FieldError{Field: "timestamp", Reason: "missing or not a string"})
	} else if _, err := time.Parse(time.RFC3339, ts); err != nil {
		errs = append(errs, FieldError{Field: "timestamp", Reason: "not a valid RFC3339 timestamp"})
	}

	data, dataOK := doc["data"].(map[string]interface{})
	if !dataOK {
		errs = append(errs, FieldError{Field: "data", Reason: "missing or not an object"})
	}

	if p, ok := numberField(doc, "priority"); !ok {
		errs = append(errs, FieldError{Field: "priority", Reason: "missing or not a number"})
	} else if p != math.Trunc(p) || p < models.MinPriority || p > models.MaxPriority {
		errs = append(errs, FieldError{Field: "priority", Reason: "must be an integer between 1 and 10"})
	}

	// Sub-schema checks only make sense once the top level is sound.
	if len(errs) == 0 && dataOK {
		if schema, ok := v.schemas[msgType]; ok {
			errs = append(errs, schema(data)...)
		}
	}

	if len(errs) > 0 {
		return invalid(errs...)
	}
	return ValidationResult{Valid: true}
}

func invalid(errs ...FieldError) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

func stringField(doc map[string]interface{}, name string) (string, bool) {
	v, ok := doc[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberField(doc map[string]interface{}, name string) (float64, bool) {
	v, ok := doc[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
