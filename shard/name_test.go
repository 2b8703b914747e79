package shard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	ts := time.Date(2024, 5, 2, 13, 37, 42, 123456789, time.UTC)
	name := Name("arc", "train", 3, 902, ts, "publisher-1")
	assert.Equal(t,
		"arc__train-00003-of-00902__20240502-133742-123456789__publisher-1.pb.gz",
		name)

	ni, err := ParseName(name)
	require.NoError(t, err)
	assert.Equal(t, "arc", ni.DatasetName)
	assert.Equal(t, "train", ni.SplitName)
	assert.Equal(t, 3, ni.ShardIndex)
	assert.Equal(t, 902, ni.ShardCount)
	assert.Equal(t, "publisher-1", ni.InstanceID)
	assert.Equal(t, ts, ni.Timestamp)
	assert.Equal(t, name, ni.FullName)
}

func TestParseName_splitWithDash(t *testing.T) {
	ts := time.Date(2024, 5, 2, 13, 37, 42, 0, time.UTC)
	name := Name("isles24", "train-extra", 0, 1, ts, "i")
	ni, err := ParseName(name)
	require.NoError(t, err)
	assert.Equal(t, "train-extra", ni.SplitName)
	assert.Equal(t, 0, ni.ShardIndex)
	assert.Equal(t, 1, ni.ShardCount)
}

func TestParseName_invalid(t *testing.T) {
	for _, name := range []string{
		"",
		"no-dot",
		"wrong__ext__20240502-133742-123456789__i.json",
		"onlyone__part.pb.gz",
		"arc__train__20240502-133742-123456789__i.pb.gz",        // no shard counters
		"arc__train-x-of-00001__20240502-133742-123456789__i.pb.gz",
		"arc__train-00000-of-x__20240502-133742-123456789__i.pb.gz",
		"arc__train-00000-of-00001__20240502__i.pb.gz",          // bad timestamp
		"arc__-00000-of-00001__20240502-133742-123456789__i.pb.gz", // empty split
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseName(name)
			assert.Error(t, err)
		})
	}
}

func TestManifestName(t *testing.T) {
	assert.Equal(t, "arc__train__dataset_info.json", ManifestName("arc", "train"))
}
