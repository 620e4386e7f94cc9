package transform

import (
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
)

// DeploymentCreated captures a deployment as an event of type tag.
// The resource list is stored under resourcesKey as [{name, content}].
func DeploymentCreated(tag, resourcesKey string) Transformer {
	return Func(func(ev runtime.Event) (ir.SimEvent, bool) {
		if ev.Kind != runtime.KindDeploymentCreated {
			return ir.SimEvent{}, false
		}
		resources, _ := ev.Fields.Array(runtime.FieldResources)

		payload := ir.IRObject{
			ir.KeyDeploymentName: stringField(ev.Fields, runtime.FieldDeploymentName),
			resourcesKey:         copyResources(resources),
		}
		return ir.SimEvent{Type: tag, Payload: payload}, true
	})
}

func copyResources(in ir.IRArray) ir.IRArray {
	out := make(ir.IRArray, 0, len(in))
	for _, v := range in {
		obj, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		out = append(out, ir.IRObject{
			ir.KeyResourceName:    stringField(obj, runtime.FieldResourceName),
			ir.KeyResourceContent: stringField(obj, runtime.FieldResourceContent),
		})
	}
	return out
}

// ProcessStarted captures a process start as an event of type tag.
// The definition ID, business key and variable snapshot are stored under
// the given keys.
func ProcessStarted(tag, definitionIDKey, businessKeyKey, variablesKey string) Transformer {
	return Func(func(ev runtime.Event) (ir.SimEvent, bool) {
		if ev.Kind != runtime.KindProcessStarted {
			return ir.SimEvent{}, false
		}
		payload := ir.IRObject{
			definitionIDKey: stringField(ev.Fields, runtime.FieldProcessDefinitionID),
			businessKeyKey:  stringField(ev.Fields, runtime.FieldBusinessKey),
			variablesKey:    objectField(ev.Fields, runtime.FieldVariables),
		}
		return ir.SimEvent{Type: tag, Payload: payload}, true
	})
}

// TaskCompleted captures a user task completion as an event of type tag.
//
// Runtime IDs differ between the recorded runtime and the replay target, so
// the payload identifies the task by what is stable across runtimes: task
// definition key, process definition ID and business key.
func TaskCompleted(tag string) Transformer {
	return Func(func(ev runtime.Event) (ir.SimEvent, bool) {
		if ev.Kind != runtime.KindTaskCompleted {
			return ir.SimEvent{}, false
		}
		payload := ir.IRObject{
			ir.KeyTaskDefinitionKey:   stringField(ev.Fields, runtime.FieldTaskDefinitionKey),
			ir.KeyProcessDefinitionID: stringField(ev.Fields, runtime.FieldProcessDefinitionID),
			ir.KeyBusinessKey:         stringField(ev.Fields, runtime.FieldBusinessKey),
			ir.KeyAssignee:            stringField(ev.Fields, runtime.FieldAssignee),
			ir.KeyVariables:           objectField(ev.Fields, runtime.FieldVariables),
		}
		return ir.SimEvent{Type: tag, Payload: payload}, true
	})
}

// stringField returns fields[key] as a string value, "" when absent.
func stringField(fields ir.IRObject, key string) ir.IRString {
	s, _ := fields.String(key)
	return ir.IRString(s)
}

// objectField returns a deep copy of fields[key], {} when absent.
func objectField(fields ir.IRObject, key string) ir.IRObject {
	obj, _ := fields.Object(key)
	return obj.Clone()
}
