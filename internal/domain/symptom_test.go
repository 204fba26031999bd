package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymptomStateAppendSupersedes(t *testing.T) {
	state := NewSymptomState("s-1", "", "en", Int(30))

	require.NoError(t, state.Append(SymptomEntry{QuestionID: "q.headache", SymptomID: "headache_vision", Severity: SeverityMild}))
	require.NoError(t, state.Append(SymptomEntry{QuestionID: "q.swelling", SymptomID: "swelling", Severity: SeverityNone}))
	require.NoError(t, state.Append(SymptomEntry{QuestionID: "q.headache", SymptomID: "headache_vision", Severity: SeveritySevere}))

	require.Len(t, state.Entries, 3, "history is never destroyed")
	assert.True(t, state.Entries[0].Superseded)
	assert.False(t, state.Entries[2].Superseded)
	assert.Equal(t, 3, state.Entries[2].Sequence)

	active, ok := state.Active("headache_vision")
	require.True(t, ok)
	assert.Equal(t, SeveritySevere, active.Severity)

	entries := state.ActiveEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "swelling", entries[0].SymptomID)
	assert.Equal(t, "headache_vision", entries[1].SymptomID)
	assert.NoError(t, state.Validate())
}

func TestSymptomStateAppendRejectsInvalidEntry(t *testing.T) {
	state := NewSymptomState("s-1", "", "en", nil)

	err := state.Append(SymptomEntry{SymptomID: "fever", Severity: "awful"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	err = state.Append(SymptomEntry{SymptomID: "fever", Severity: SeverityMild, DurationHours: Float(-1)})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	assert.Empty(t, state.Entries, "rejected answers leave the state unchanged")
}

func TestSymptomStateSnapshotIsIndependent(t *testing.T) {
	state := NewSymptomState("s-1", "u-1", "en", Int(20))
	require.NoError(t, state.Append(SymptomEntry{SymptomID: "vaginal_bleeding", Severity: SeveritySevere, DurationHours: Float(3)}))

	snap := state.Snapshot()
	*snap.Entries[0].DurationHours = 10
	*snap.GestationalWeek = 40
	snap.Entries[0].Severity = SeverityNone

	active, _ := state.Active("vaginal_bleeding")
	assert.Equal(t, 3.0, *active.DurationHours)
	assert.Equal(t, SeveritySevere, active.Severity)
	assert.Equal(t, 20, *state.GestationalWeek)
}

func TestSymptomStateValidateDetectsDuplicateActive(t *testing.T) {
	state := &SymptomState{
		SessionID: "s-1",
		Entries: []SymptomEntry{
			{SymptomID: "fever", Severity: SeverityMild},
			{SymptomID: "fever", Severity: SeveritySevere},
		},
	}
	assert.Error(t, state.Validate())
}

func TestValidateGestationalWeek(t *testing.T) {
	assert.NoError(t, ValidateGestationalWeek(nil))
	assert.NoError(t, ValidateGestationalWeek(Int(12)))
	assert.Error(t, ValidateGestationalWeek(Int(0)))
	assert.Error(t, ValidateGestationalWeek(Int(60)))
}
