package arc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
)

const participantsTSV = "participant_id\tage_at_stroke\tsex\trace\twab_aq\twab_days\twab_type\n" +
	"sub-M2001\t54.3\tM\tb\t72.6\t128\tBroca\n" +
	"sub-M2002\tn/a\tF\tn/a\tn/a\tn/a\tn/a\n" +
	"sub-M2003\t60\tM\tw\t80\t90\tAnomic\n" + // no directory on disk
	"sub-M2004\t61\tF\tw\t81\t91\tAnomic\n" // directory without sessions

func writeText(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// mockARC builds a miniature tree with one fully populated session and one
// nearly empty session.
func mockARC(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeText(t, filepath.Join(root, "participants.tsv"), participantsTSV)

	s1 := filepath.Join(root, "sub-M2001", "ses-1")
	for _, p := range []string{
		filepath.Join(s1, "anat", "sub-M2001_ses-1_T1w.nii.gz"),
		filepath.Join(s1, "anat", "sub-M2001_ses-1_acq-spc3p2_T2w.nii.gz"),
		filepath.Join(s1, "anat", "sub-M2001_ses-1_FLAIR.nii.gz"),
		filepath.Join(s1, "func", "sub-M2001_ses-1_task-naming40_run-1_bold.nii.gz"),
		filepath.Join(s1, "func", "sub-M2001_ses-1_task-rest_bold.nii.gz"),
		filepath.Join(s1, "dwi", "sub-M2001_ses-1_dwi.nii.gz"),
		filepath.Join(s1, "dwi", "sub-M2001_ses-1_sbref.nii.gz"),
		filepath.Join(root, "derivatives", "lesion_masks", "sub-M2001", "ses-1",
			"anat", "sub-M2001_ses-1_desc-lesion_mask.nii.gz"),
	} {
		require.NoError(t, bids.WriteTestNIfTI(p))
	}
	writeText(t, filepath.Join(s1, "dwi", "sub-M2001_ses-1_dwi.bval"), "0 1000 2000\n")
	writeText(t, filepath.Join(s1, "dwi", "sub-M2001_ses-1_dwi.bvec"), "1 0 0\n0 1 0\n0 0 1\n")

	// Session without any imaging
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub-M2002", "ses-1"), 0o755))
	// Subject directory without sessions
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub-M2004"), 0o755))

	return root
}

func TestBuild(t *testing.T) {
	b, err := datasets.Get(Kind)
	require.NoError(t, err)

	tbl, err := b.Build(mockARC(t))
	require.NoError(t, err)
	require.NoError(t, tbl.CheckColumns())
	require.Equal(t, 2, tbl.NumRows())

	full := tbl.Rows[0]
	assert.Equal(t, "sub-M2001", full["subject_id"].Str())
	assert.Equal(t, "ses-1", full["session_id"].Str())
	assert.Equal(t, "space_2x", full["t2w_acquisition"].Str())
	assert.Len(t, full["t1w"].Images(), 1)
	assert.Len(t, full["bold_naming40"].Images(), 1)
	assert.Len(t, full["bold_rest"].Images(), 1)
	assert.Equal(t, []string{"0 1000 2000"}, full["dwi_bvals"].Strings())
	assert.Equal(t, []string{"1 0 0\n0 1 0\n0 0 1"}, full["dwi_bvecs"].Strings())
	assert.False(t, full["lesion"].IsNull())
	assert.InDelta(t, 54.3, full["age_at_stroke"].Float32(), 0.001)
	assert.Equal(t, "Broca", full["wab_type"].Str())

	empty := tbl.Rows[1]
	assert.Equal(t, "sub-M2002", empty["subject_id"].Str())
	assert.Equal(t, 0, empty["t1w"].NumItems())
	assert.True(t, empty["t2w_acquisition"].IsNull())
	assert.True(t, empty["lesion"].IsNull())
	assert.True(t, empty["age_at_stroke"].IsNull())
	assert.True(t, empty["race"].IsNull())
}

func TestBuild_unexpectedTask(t *testing.T) {
	root := mockARC(t)
	require.NoError(t, bids.WriteTestNIfTI(filepath.Join(root, "sub-M2001", "ses-1",
		"func", "sub-M2001_ses-1_task-motor_bold.nii.gz")))

	_, err := builder{}.Build(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected BOLD task")
	assert.Contains(t, err.Error(), "task-motor")
}

func TestBuild_missingGradient(t *testing.T) {
	root := mockARC(t)
	require.NoError(t, os.Remove(filepath.Join(root, "sub-M2001", "ses-1",
		"dwi", "sub-M2001_ses-1_dwi.bval")))

	_, err := builder{}.Build(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing gradient file")
}

func TestBuild_noParticipants(t *testing.T) {
	_, err := builder{}.Build(t.TempDir())
	require.Error(t, err)
}

func TestAcquisitionType(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"sub-1_ses-1_acq-spc3p2_T2w.nii.gz", "space_2x", true},
		{"sub-1_ses-1_acq-spc3_T2w.nii.gz", "space_no_accel", true},
		{"sub-1_ses-1_acq-tse3_T2w.nii.gz", "turbo_spin_echo", true},
		{"sub-1_ses-1_acq-SPC3_T2w.nii.gz", "space_no_accel", true},
		{"sub-1_ses-1_acq-spc3foo_T2w.nii.gz", "spc3foo", true}, // exact match only
		{"sub-1_ses-1_T2w.nii.gz", "", false},
	}
	for _, tc := range tests {
		got, ok := acquisitionType(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}

func TestTableChecks(t *testing.T) {
	b := builder{}
	tbl, err := b.Build(mockARC(t))
	require.NoError(t, err)

	checks := b.TableChecks(tbl)
	byName := make(map[string]bool)
	for _, c := range checks {
		byName[c.Name] = c.Passed
	}
	// The census values do not fit a two-row fixture, but structure checks do.
	assert.True(t, byName["schema"])
	assert.True(t, byName["alignment_dwi+dwi_bvals+dwi_bvecs"])
	assert.False(t, byName["row_count"])
	assert.Contains(t, byName, "t1w_sessions")
	assert.Contains(t, byName, "dwi_total")
}

func TestRules(t *testing.T) {
	r := builder{}.Rules()
	assert.Equal(t, 230, r.ExpectedCounts["subjects"])
	assert.Equal(t, 902, r.ExpectedCounts["sessions"])
	assert.Len(t, r.CustomChecks, 1)

	c := r.CustomChecks[0](t.TempDir())
	assert.False(t, c.Passed)
	assert.Contains(t, c.Details, "lesion_masks")

	root := mockARC(t)
	c = r.CustomChecks[0](root)
	assert.Equal(t, "lesion_count", c.Name)
	assert.Equal(t, "1", c.Actual)
}

func TestInfo(t *testing.T) {
	info := builder{}.Info()
	assert.Equal(t, Kind, info.Kind)
	assert.Equal(t, "session", info.RowUnit)
	assert.Contains(t, datasets.Kinds(), Kind)
}
