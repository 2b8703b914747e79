package validation

import (
	"crypto/md5"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
)

// Rules declares what a valid download of one dataset looks like. The
// expected counts are the hand-verified census of the source.
type Rules struct {
	Name string

	// ExpectedCounts holds the census: "subjects", "sessions" and one key
	// per modality named in ModalityPatterns or PathPatterns.
	ExpectedCounts map[string]int

	// RequiredFiles are paths relative to the root that must exist.
	RequiredFiles []string

	// RequiredDirs are directories relative to the root that must exist.
	RequiredDirs []string

	// SubjectsDir is the directory holding the sub-* dirs, relative to the
	// root. Empty means the root itself.
	SubjectsDir string

	// ModalityPatterns maps a census key to a base-name pattern, counted as
	// the number of sessions (or subjects when there is no ses-* level)
	// containing at least one match.
	ModalityPatterns map[string]string

	// PathPatterns maps a census key to a full-path glob relative to the
	// root, counted as the number of non-empty matching files. Used for
	// layouts that keep modalities outside the sub-*/ses-* tree.
	PathPatterns map[string]string

	// CustomChecks run after the declarative checks.
	CustomChecks []func(root string) Check

	// DefaultTolerance is the allowed missing fraction applied to all count
	// checks when the caller does not override it.
	DefaultTolerance float64

	// ArchiveFile and ArchiveMD5 verify the source archive checksum. The
	// path is relative to the root's parent directory, and the check is
	// skipped when the archive has already been deleted.
	ArchiveFile string
	ArchiveMD5  string
}

// Options are per-run validation settings.
type Options struct {
	// Tolerance overrides the rules' default when >= 0.
	Tolerance float64

	// SampleSize is the number of files in the NIfTI header spot check.
	SampleSize int
}

// DefaultOptions uses the rules' tolerance and a 10-file spot check.
func DefaultOptions() Options {
	return Options{Tolerance: -1, SampleSize: 10}
}

// Validate runs all declarative checks for a downloaded dataset.
func Validate(root string, rules Rules, opts Options) *Result {
	result := &Result{Target: root}

	tolerance := rules.DefaultTolerance
	if opts.Tolerance >= 0 {
		tolerance = opts.Tolerance
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 10
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		result.Add(Check{
			Name:     "bids_root",
			Expected: "directory exists",
			Actual:   "MISSING",
		})
		return result
	}

	result.Add(checkZeroByte(root))
	result.Add(checkRequiredFiles(root, rules.RequiredFiles))
	for _, dir := range rules.RequiredDirs {
		path := filepath.Join(root, dir)
		info, err := os.Stat(path)
		ok := err == nil && info.IsDir()
		actual := "exists"
		if !ok {
			actual = "MISSING"
		}
		result.Add(Check{
			Name:     "dir_" + dir,
			Expected: "exists",
			Actual:   actual,
			Passed:   ok,
		})
	}

	subjectsRoot := filepath.Join(root, rules.SubjectsDir)
	if expected, ok := rules.ExpectedCounts["subjects"]; ok {
		subs, _ := bids.SubjectDirs(subjectsRoot)
		result.Add(CheckCount("subjects", len(subs), expected, tolerance))
	}
	if expected, ok := rules.ExpectedCounts["sessions"]; ok {
		result.Add(CheckCount("sessions", countSessions(subjectsRoot), expected, tolerance))
	}

	for _, key := range sortedKeys(rules.ModalityPatterns) {
		expected, ok := rules.ExpectedCounts[key]
		if !ok {
			continue
		}
		actual := CountSessionsWithModality(subjectsRoot, rules.ModalityPatterns[key])
		result.Add(CheckCount(key+"_count", actual, expected, tolerance))
	}
	for _, key := range sortedKeys(rules.PathPatterns) {
		expected, ok := rules.ExpectedCounts[key]
		if !ok {
			continue
		}
		actual := countNonEmptyMatches(root, rules.PathPatterns[key])
		result.Add(CheckCount(key+"_count", actual, expected, tolerance))
	}

	for _, custom := range rules.CustomChecks {
		result.Add(custom(root))
	}

	result.Add(checkNIfTIIntegrity(root, opts.SampleSize))

	if rules.ArchiveMD5 != "" && rules.ArchiveFile != "" {
		archivePath := filepath.Join(filepath.Dir(root), rules.ArchiveFile)
		if _, err := os.Stat(archivePath); err == nil {
			result.Add(VerifyMD5(archivePath, rules.ArchiveMD5))
		}
	}

	return result
}

func checkZeroByte(root string) Check {
	zero, err := bids.ZeroByteFiles(root)
	if err != nil {
		return Check{
			Name:     "zero_byte_files",
			Expected: "0",
			Actual:   fmt.Sprintf("scan error: %v", err),
		}
	}
	c := Check{
		Name:     "zero_byte_files",
		Expected: "0",
		Actual:   fmt.Sprintf("%d", len(zero)),
		Passed:   len(zero) == 0,
	}
	if len(zero) > 0 {
		n := len(zero)
		if n > 5 {
			n = 5
		}
		c.Details = "first 5: " + strings.Join(zero[:n], ", ")
	}
	return c
}

func checkRequiredFiles(root string, required []string) Check {
	var missing []string
	for _, f := range required {
		if _, err := os.Stat(filepath.Join(root, f)); err != nil {
			missing = append(missing, f)
		}
	}
	c := Check{
		Name:     "required_files",
		Expected: "all present",
		Actual:   "all present",
		Passed:   len(missing) == 0,
	}
	if len(missing) > 0 {
		c.Actual = fmt.Sprintf("missing: %d", len(missing))
		c.Details = "missing: " + strings.Join(missing, ", ")
	}
	return c
}

// CountSessionsWithModality counts the sessions containing at least one file
// matching the base-name pattern. Datasets without a ses-* level count
// subjects instead.
func CountSessionsWithModality(root, pattern string) int {
	count := 0
	subjects, _ := bids.SubjectDirs(root)
	for _, sub := range subjects {
		sessions, _ := bids.SessionDirs(sub)
		if len(sessions) == 0 {
			sessions = []string{sub}
		}
		for _, ses := range sessions {
			matches, err := bids.FindAllNIfTIs(ses, pattern)
			if err == nil && len(matches) > 0 {
				count++
			}
		}
	}
	return count
}

func countSessions(root string) int {
	count := 0
	subjects, _ := bids.SubjectDirs(root)
	for _, sub := range subjects {
		sessions, _ := bids.SessionDirs(sub)
		count += len(sessions)
	}
	return count
}

func countNonEmptyMatches(root, pattern string) int {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return 0
	}
	count := 0
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Size() > 0 {
			count++
		}
	}
	return count
}

// checkNIfTIIntegrity spot-checks the headers of a random sample of NIfTI
// files. It prefers T1w files and falls back to any NIfTI.
func checkNIfTIIntegrity(root string, sampleSize int) Check {
	files, _ := bids.FindAllNIfTIs(root, "*_T1w.nii.gz")
	if len(files) == 0 {
		files, _ = bids.FindAllNIfTIs(root, "*.nii.gz")
	}
	if len(files) == 0 {
		return Check{
			Name:     "nifti_integrity",
			Expected: "readable headers",
			Actual:   "no NIfTI files found",
		}
	}

	if sampleSize > len(files) {
		sampleSize = len(files)
	}
	sample := rand.Perm(len(files))[:sampleSize]
	for _, idx := range sample {
		if err := bids.CheckNIfTIHeader(files[idx]); err != nil {
			return Check{
				Name:     "nifti_integrity",
				Expected: "readable headers",
				Actual:   fmt.Sprintf("ERROR: %v", err),
				Details:  "failed on: " + filepath.Base(files[idx]),
			}
		}
	}
	return Check{
		Name:     "nifti_integrity",
		Expected: "readable headers",
		Actual:   fmt.Sprintf("%d/%d passed", sampleSize, sampleSize),
		Passed:   true,
	}
}

// VerifyMD5 computes the MD5 checksum of a file and compares it against the
// expected hex digest.
func VerifyMD5(path, expected string) Check {
	name := "md5_" + filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return Check{
			Name:     name,
			Expected: "file exists",
			Actual:   "MISSING",
		}
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return Check{
			Name:     name,
			Expected: expected,
			Actual:   fmt.Sprintf("error reading file: %v", err),
		}
	}
	computed := fmt.Sprintf("%x", h.Sum(nil))
	return Check{
		Name:     name,
		Expected: expected,
		Actual:   computed,
		Passed:   computed == expected,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
