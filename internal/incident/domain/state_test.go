package incident

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/platform/fault"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateRegistered, StateReviewed}: true,
		{StateRegistered, StateApproved}: true,
		{StateRegistered, StateRejected}: true,
		{StateReviewed, StateApproved}:   true,
		{StateReviewed, StateRejected}:   true,
		{StateApproved, StateSettled}:    true,
		{StateRejected, StateRegistered}: true,
	}
	states := []State{StateRegistered, StateReviewed, StateApproved, StateSettled, StateRejected}
	for _, from := range states {
		for _, to := range states {
			err := CheckTransition(from, to)
			if allowed[[2]State{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			assert.ErrorIs(t, err, fault.ErrConflict)
		}
	}
	assert.True(t, StateSettled.Terminal())
	assert.False(t, StateRejected.Terminal())
}

func TestParseState(t *testing.T) {
	state, err := ParseState(" Approved ")
	require.NoError(t, err)
	assert.Equal(t, StateApproved, state)

	_, err = ParseState("closed")
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestOptionalJSONPresence(t *testing.T) {
	var payload struct {
		Description  Optional[string] `json:"description"`
		Observations Optional[string] `json:"observations"`
		Modality     Optional[string] `json:"modality"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"description":"pump failure","observations":null}`), &payload))

	assert.True(t, payload.Description.Present())
	assert.Equal(t, "pump failure", payload.Description.Value)
	assert.True(t, payload.Observations.Set)
	assert.True(t, payload.Observations.Null)
	assert.False(t, payload.Observations.Present())
	assert.False(t, payload.Modality.Set)

	out, err := json.Marshal(Some(3))
	require.NoError(t, err)
	assert.JSONEq(t, `3`, string(out))
	out, err = json.Marshal(Null[int]())
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(out))
}
