package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/rewind/internal/ir"
)

// marshalObject converts IRObject to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

// marshalTasks stores a task list as a canonical JSON array of objects.
func marshalTasks(tasks []TaskDefinition) (string, error) {
	arr := make(ir.IRArray, 0, len(tasks))
	for _, td := range tasks {
		obj := ir.IRObject{
			"key":  ir.IRString(td.Key),
			"name": ir.IRString(td.Name),
		}
		if td.Assignee != "" {
			obj["assignee"] = ir.IRString(td.Assignee)
		}
		arr = append(arr, obj)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal tasks: %w", err)
	}
	return string(data), nil
}

func unmarshalTasks(data string) ([]TaskDefinition, error) {
	tasks := []TaskDefinition{}
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	return tasks, nil
}

// Times are stored as Unix nanoseconds and read back in UTC.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// nullableNanos maps an optional end time to a nullable column value.
func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(ns *int64) *time.Time {
	if ns == nil {
		return nil
	}
	t := fromNanos(*ns)
	return &t
}
