package server

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/samber/lo"

	"github.com/ddworken/analytics-ingest/internal/database"
)

var requiredFields = []string{"first_install_date", "platform"}

// payloadFields are the exact JSON keys of TelemetryPayload. Any other key in a report is ignored.
var payloadFields = jsonFieldNames(reflect.TypeOf(database.TelemetryPayload{}))

func jsonFieldNames(t reflect.Type) []string {
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			names = append(names, name)
		}
	}
	return names
}

// MissingFieldsError is returned when the body is not a JSON object or lacks a mandatory field.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// decodeBody parses the raw body without imposing a shape on it.
func decodeBody(data []byte) (any, error) {
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return body, nil
}

// validatePayload checks presence only: the body must be an object and every required field
// must be non-empty. Optional fields are not inspected. The returned map is what the record is
// built from.
func validatePayload(body any) (map[string]any, error) {
	fields, ok := body.(map[string]any)
	if !ok {
		return nil, &MissingFieldsError{Fields: requiredFields}
	}
	missing := lo.Filter(requiredFields, func(name string, _ int) bool {
		return isEmpty(fields[name])
	})
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	return fields, nil
}

// isEmpty treats null, "", false and 0 as absent.
func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	default:
		return false
	}
}

// buildRecord types the validated fields into a record for origin. Only exact payload keys are
// kept, so case variants like "Platform" cannot override what was validated. Values are taken
// as sent: a field of the wrong JSON type is an error, never converted.
func buildRecord(fields map[string]any, origin string) (*database.AnalyticsRecord, error) {
	data, err := json.Marshal(lo.PickByKeys(fields, payloadFields))
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	var payload database.TelemetryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &database.AnalyticsRecord{
		TelemetryPayload: payload,
		ClientIP:         origin,
	}, nil
}
