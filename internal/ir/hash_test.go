package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterminism(t *testing.T) {
	ts := time.UnixMilli(1000)
	payload := IRObject{"business_key": IRString("order-1")}

	id1, err := EventID(TypeProcessStart, ts, 2, payload)
	require.NoError(t, err)
	id2, err := EventID(TypeProcessStart, ts, 2, payload.Clone())
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "EventID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestEventIDChangesWithInput(t *testing.T) {
	ts := time.UnixMilli(1000)
	payload := IRObject{"k": IRString("v")}

	base, err := EventID("a", ts, 1, payload)
	require.NoError(t, err)

	variants := map[string]func() (string, error){
		"type":      func() (string, error) { return EventID("b", ts, 1, payload) },
		"timestamp": func() (string, error) { return EventID("a", ts.Add(time.Millisecond), 1, payload) },
		"seq":       func() (string, error) { return EventID("a", ts, 2, payload) },
		"payload":   func() (string, error) { return EventID("a", ts, 1, IRObject{"k": IRString("w")}) },
	}
	for name, fn := range variants {
		t.Run(name, func(t *testing.T) {
			id, err := fn()
			require.NoError(t, err)
			assert.NotEqual(t, base, id)
		})
	}
}

func TestEventIDNilPayloadEqualsEmpty(t *testing.T) {
	ts := time.UnixMilli(0)
	a, err := EventID("a", ts, 1, nil)
	require.NoError(t, err)
	b, err := EventID("a", ts, 1, IRObject{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
