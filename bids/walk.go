// Package bids implements helpers for the BIDS directory-and-filename
// convention: per-subject/per-session file discovery, participants.tsv
// parsing and NIfTI file integrity checks.
package bids

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FindAllNIfTIs recursively searches searchDir for files whose base name
// matches pattern (filepath.Match syntax). The result is sorted by base name
// and contains absolute paths. A missing directory yields an empty result,
// not an error, because optional modality directories are common in BIDS.
func FindAllNIfTIs(searchDir, pattern string) ([]string, error) {
	info, err := os.Stat(searchDir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var matches []string
	err = filepath.WalkDir(searchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err // invalid pattern
		}
		if ok {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			matches = append(matches, abs)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", searchDir)
	}

	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})
	return matches, nil
}

// FindSingleNIfTI returns the first match of FindAllNIfTIs, or "" when
// nothing matches.
func FindSingleNIfTI(searchDir, pattern string) (string, error) {
	matches, err := FindAllNIfTIs(searchDir, pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

// ZeroByteFiles scans root for zero-byte .nii.gz files, a common download
// corruption indicator. It returns paths relative to root.
func ZeroByteFiles(root string) ([]string, error) {
	var zero []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".gz" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil // removed in the meantime
			}
			return err
		}
		if info.Size() == 0 {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			zero = append(zero, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", root)
	}
	sort.Strings(zero)
	return zero, nil
}

// SubjectDirs lists the sub-* directories directly under root, sorted.
func SubjectDirs(root string) ([]string, error) {
	return matchDirs(root, "sub-*")
}

// SessionDirs lists the ses-* directories directly under subjectDir, sorted.
func SessionDirs(subjectDir string) ([]string, error) {
	return matchDirs(subjectDir, "ses-*")
}

func matchDirs(root, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, m)
	}
	sort.Strings(dirs)
	return dirs, nil
}
