package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/store"
)

// EventView is the output form of a recorded or dispatched event.
type EventView struct {
	Seq     int64       `json:"seq"`
	AtMs    int64       `json:"at_ms"`
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	Payload ir.IRObject `json:"payload,omitempty"`
}

func newEventView(ev ir.SimEvent, withPayload bool) EventView {
	v := EventView{
		Seq:  ev.Seq,
		AtMs: clock.ToMillis(ev.Timestamp),
		Type: ev.Type,
		ID:   ev.ID,
	}
	if withPayload {
		v.Payload = ev.Payload.Clone()
	}
	return v
}

func eventViews(events []ir.SimEvent, withPayload bool) []EventView {
	out := make([]EventView, len(events))
	for i, ev := range events {
		out[i] = newEventView(ev, withPayload)
	}
	return out
}

// RecordingView is the output form of a saved recording.
type RecordingView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	EventCount int       `json:"event_count"`
}

func newRecordingView(rec store.Recording) RecordingView {
	return RecordingView{
		ID:         rec.ID,
		Name:       rec.Name,
		CreatedAt:  rec.CreatedAt,
		EventCount: rec.EventCount,
	}
}

// InstanceView is a process instance of the replay runtime.
type InstanceView struct {
	DefinitionID string      `json:"definition_id"`
	BusinessKey  string      `json:"business_key,omitempty"`
	Variables    ir.IRObject `json:"variables"`
	Ended        bool        `json:"ended"`
}

// TaskView is a task of the replay runtime.
type TaskView struct {
	DefinitionKey string `json:"definition_key"`
	BusinessKey   string `json:"business_key,omitempty"`
	Assignee      string `json:"assignee,omitempty"`
	Ended         bool   `json:"ended"`
}

// StateView is the replay runtime's instances and tasks in every state.
// Generated IDs are left out so two replays compare equal.
type StateView struct {
	Instances []InstanceView `json:"instances"`
	Tasks     []TaskView     `json:"tasks"`
}

func captureState(ctx context.Context, rt *runtime.Engine) (StateView, error) {
	instances, err := rt.HistoricProcessInstances(ctx, store.InstanceFilter{})
	if err != nil {
		return StateView{}, fmt.Errorf("query instances: %w", err)
	}
	tasks, err := rt.HistoricTasks(ctx, store.TaskFilter{})
	if err != nil {
		return StateView{}, fmt.Errorf("query tasks: %w", err)
	}

	view := StateView{
		Instances: make([]InstanceView, len(instances)),
		Tasks:     make([]TaskView, len(tasks)),
	}
	for i, pi := range instances {
		view.Instances[i] = InstanceView{
			DefinitionID: pi.DefinitionID,
			BusinessKey:  pi.BusinessKey,
			Variables:    pi.Variables.Clone(),
			Ended:        pi.Ended(),
		}
	}
	for i, t := range tasks {
		view.Tasks[i] = TaskView{
			DefinitionKey: t.DefinitionKey,
			BusinessKey:   t.BusinessKey,
			Assignee:      t.Assignee,
			Ended:         t.Ended(),
		}
	}
	return view, nil
}

// openStore opens the recordings database, mapping failures to
// ExitCommandError.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadRecording reads name from the database at path.
func loadRecording(ctx context.Context, path, name string) (store.Recording, error) {
	st, err := openStore(path)
	if err != nil {
		return store.Recording{}, err
	}
	defer st.Close()

	rec, err := st.LoadRecording(ctx, name)
	if errors.Is(err, store.ErrRecordingNotFound) {
		return store.Recording{}, WrapExitError(ExitCommandError, "unknown recording", err)
	}
	if err != nil {
		return store.Recording{}, WrapExitError(ExitCommandError, "failed to load recording", err)
	}
	return rec, nil
}
