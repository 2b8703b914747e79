package validation

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
)

func TestCheckCount(t *testing.T) {
	tests := []struct {
		name      string
		actual    int
		expected  int
		tolerance float64
		passed    bool
	}{
		{"exact", 230, 230, 0, true},
		{"missing strict", 229, 230, 0, false},
		{"above target", 231, 230, 0, true},
		{"within tolerance", 135, 149, 0.1, true},
		{"at threshold", 135, 149, 0.1, true}, // 149 - floor(14.9) = 135
		{"below threshold", 134, 149, 0.1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := CheckCount("x", tc.actual, tc.expected, tc.tolerance)
			assert.Equal(t, tc.passed, c.Passed)
		})
	}

	c := CheckCount("subjects", 229, 230, 0)
	assert.Equal(t, ">= 230 (target: 230)", c.Expected)
	assert.Equal(t, "229", c.Actual)
}

// mockBIDS creates two subjects with two sessions each. Only three sessions
// carry a T1w.
func mockBIDS(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{
		"sub-001/ses-1/anat/sub-001_ses-1_T1w.nii.gz",
		"sub-001/ses-2/anat/sub-001_ses-2_T1w.nii.gz",
		"sub-002/ses-1/anat/sub-002_ses-1_T1w.nii.gz",
	} {
		require.NoError(t, bids.WriteTestNIfTI(filepath.Join(root, p)))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub-002", "ses-2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "participants.tsv"),
		[]byte("participant_id\nsub-001\nsub-002\n"), 0o644))
	return root
}

func TestValidate(t *testing.T) {
	root := mockBIDS(t)
	rules := Rules{
		Name: "mock",
		ExpectedCounts: map[string]int{
			"subjects": 2,
			"sessions": 4,
			"t1w":      3,
		},
		RequiredFiles:    []string{"participants.tsv"},
		ModalityPatterns: map[string]string{"t1w": "*_T1w.nii.gz"},
		CustomChecks: []func(root string) Check{
			func(root string) Check {
				return Check{Name: "custom", Expected: "x", Actual: "x", Passed: true}
			},
		},
	}

	result := Validate(root, rules, DefaultOptions())
	require.True(t, result.AllPassed(), result.Summary())

	names := make(map[string]bool)
	for _, c := range result.Checks {
		names[c.Name] = true
	}
	for _, want := range []string{
		"zero_byte_files", "required_files", "subjects", "sessions",
		"t1w_count", "custom", "nifti_integrity",
	} {
		assert.True(t, names[want], "missing check %s", want)
	}
	assert.Equal(t, len(result.Checks), result.PassedCount())
	assert.Equal(t, 0, result.FailedCount())
}

func TestValidate_failures(t *testing.T) {
	root := mockBIDS(t)

	t.Run("missing root", func(t *testing.T) {
		result := Validate(filepath.Join(root, "nope"), Rules{}, DefaultOptions())
		require.Len(t, result.Checks, 1)
		assert.Equal(t, "bids_root", result.Checks[0].Name)
		assert.False(t, result.AllPassed())
	})

	t.Run("zero byte file", func(t *testing.T) {
		root := mockBIDS(t)
		bad := filepath.Join(root, "sub-001", "ses-1", "anat", "bad.nii.gz")
		require.NoError(t, os.WriteFile(bad, nil, 0o644))
		result := Validate(root, Rules{}, DefaultOptions())
		c := findCheck(t, result, "zero_byte_files")
		assert.False(t, c.Passed)
		assert.Contains(t, c.Details, "bad.nii.gz")
	})

	t.Run("missing required file", func(t *testing.T) {
		result := Validate(root, Rules{RequiredFiles: []string{"participants.json"}}, DefaultOptions())
		c := findCheck(t, result, "required_files")
		assert.False(t, c.Passed)
		assert.Contains(t, c.Details, "participants.json")
	})

	t.Run("missing required dir", func(t *testing.T) {
		result := Validate(root, Rules{RequiredDirs: []string{"derivatives"}}, DefaultOptions())
		c := findCheck(t, result, "dir_derivatives")
		assert.False(t, c.Passed)
	})

	t.Run("count below census", func(t *testing.T) {
		result := Validate(root, Rules{ExpectedCounts: map[string]int{"subjects": 5}}, DefaultOptions())
		c := findCheck(t, result, "subjects")
		assert.False(t, c.Passed)
		assert.False(t, result.AllPassed())
		assert.Contains(t, result.Summary(), "FAIL subjects")
	})

	t.Run("tolerance override", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Tolerance = 0.6
		result := Validate(root, Rules{ExpectedCounts: map[string]int{"subjects": 5}}, opts)
		c := findCheck(t, result, "subjects")
		assert.True(t, c.Passed) // 5 - floor(3) = 2
	})
}

func TestValidate_pathPatterns(t *testing.T) {
	root := t.TempDir()
	for i := 1; i <= 3; i++ {
		p := filepath.Join(root, "raw_data", fmt.Sprintf("sub-%03d", i), "ses-01",
			fmt.Sprintf("sub-%03d_ncct.nii.gz", i))
		require.NoError(t, bids.WriteTestNIfTI(p))
	}
	// A zero-byte match does not count
	empty := filepath.Join(root, "raw_data", "sub-004", "ses-01", "sub-004_ncct.nii.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(empty), 0o755))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	rules := Rules{
		SubjectsDir:    "raw_data",
		ExpectedCounts: map[string]int{"subjects": 4, "ncct": 3},
		PathPatterns:   map[string]string{"ncct": "raw_data/sub-*/ses-01/*_ncct.nii.gz"},
	}
	result := Validate(root, rules, DefaultOptions())

	c := findCheck(t, result, "ncct_count")
	assert.True(t, c.Passed, result.Summary())
	c = findCheck(t, result, "subjects")
	assert.True(t, c.Passed)
}

func TestCountSessionsWithModality_noSessionLevel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, bids.WriteTestNIfTI(
		filepath.Join(root, "sub-001", "anat", "sub-001_T1w.nii.gz")))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub-002", "anat"), 0o755))

	assert.Equal(t, 1, CountSessionsWithModality(root, "*_T1w.nii.gz"))
}

func TestVerifyMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.7z")
	content := []byte("archive contents")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	expected := fmt.Sprintf("%x", md5.Sum(content))

	c := VerifyMD5(path, expected)
	assert.True(t, c.Passed)
	assert.Equal(t, "md5_train.7z", c.Name)

	c = VerifyMD5(path, "0000")
	assert.False(t, c.Passed)

	c = VerifyMD5(filepath.Join(t.TempDir(), "nope.7z"), expected)
	assert.False(t, c.Passed)
	assert.Equal(t, "MISSING", c.Actual)
}

func TestValidate_archiveMD5(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "train")
	require.NoError(t, bids.WriteTestNIfTI(
		filepath.Join(root, "sub-001", "anat", "sub-001_T1w.nii.gz")))
	content := []byte("archive")
	require.NoError(t, os.WriteFile(filepath.Join(parent, "train.7z"), content, 0o644))

	rules := Rules{
		ArchiveFile: "train.7z",
		ArchiveMD5:  fmt.Sprintf("%x", md5.Sum(content)),
	}
	result := Validate(root, rules, DefaultOptions())
	c := findCheck(t, result, "md5_train.7z")
	assert.True(t, c.Passed)
}

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not found in result", name)
	return Check{}
}
