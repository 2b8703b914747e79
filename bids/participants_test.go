package bids

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "participants.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadParticipants(t *testing.T) {
	path := writeTSV(t, "participant_id\tage\tsex\n"+
		"sub-001\t34.5\tF\n"+
		"sub-002\tn/a\tM\n"+
		"sub-003\t41\n") // ragged row, sex missing

	ps, err := ReadParticipants(path)
	require.NoError(t, err)
	require.Len(t, ps, 3)

	assert.Equal(t, "sub-001", ps[0].String("participant_id"))
	assert.Equal(t, "F", ps[0].String("sex"))

	age, ok := ps[0].Float("age")
	assert.True(t, ok)
	assert.InDelta(t, 34.5, age, 0.001)

	// "n/a" becomes empty and does not parse
	assert.Equal(t, "", ps[1].String("age"))
	_, ok = ps[1].Float("age")
	assert.False(t, ok)

	// Ragged row: missing cell reads as empty
	assert.Equal(t, "", ps[2].String("sex"))
	age, ok = ps[2].Float("age")
	assert.True(t, ok)
	assert.InDelta(t, 41, age, 0.001)
}

func TestReadParticipants_empty(t *testing.T) {
	path := writeTSV(t, "")
	_, err := ReadParticipants(path)
	assert.Error(t, err)
}

func TestReadParticipants_missingFile(t *testing.T) {
	_, err := ReadParticipants(filepath.Join(t.TempDir(), "nope.tsv"))
	assert.Error(t, err)
}
