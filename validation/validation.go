// Package validation implements the declarative rule engine that checks a
// downloaded dataset against a hand-verified census before anything is
// uploaded: count checks with tolerance, required files, per-session
// modality counts, checksums and NIfTI spot checks, plus table-side checks
// on the assembled table.
package validation

import (
	"fmt"
	"strings"
)

// Check is the result of a single validation check.
type Check struct {
	Name     string
	Expected string
	Actual   string
	Passed   bool
	Skipped  bool // passed, but the check could not actually run
	Details  string
}

// Result collects all check results for one validation run.
type Result struct {
	Target string // BIDS root or dataset name
	Checks []Check
}

func (r *Result) Add(c Check) {
	r.Checks = append(r.Checks, c)
}

// AllPassed reports whether every check passed.
func (r *Result) AllPassed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// PassedCount returns the number of passed checks.
func (r *Result) PassedCount() (n int) {
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// FailedCount returns the number of failed checks.
func (r *Result) FailedCount() (n int) {
	for _, c := range r.Checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

// Summary returns a formatted multi-line report.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation results for: %s\n", r.Target)
	b.WriteString(strings.Repeat("=", 60) + "\n")
	for _, c := range r.Checks {
		status := "PASS"
		switch {
		case c.Skipped:
			status = "SKIP"
		case !c.Passed:
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-4s %s\n", status, c.Name)
		fmt.Fprintf(&b, "     expected: %s\n", c.Expected)
		fmt.Fprintf(&b, "     actual:   %s\n", c.Actual)
		if c.Details != "" {
			fmt.Fprintf(&b, "     details:  %s\n", c.Details)
		}
	}
	b.WriteString(strings.Repeat("=", 60) + "\n")
	if r.AllPassed() {
		b.WriteString("All validations passed, data is ready for push.\n")
	} else {
		fmt.Fprintf(&b, "%d/%d checks failed, check the download or wait for completion.\n",
			r.FailedCount(), len(r.Checks))
	}
	return b.String()
}

// CheckCount is the generic count check with minimum-threshold tolerance:
// it passes when actual >= expected - floor(expected*tolerance). A strict
// equality check uses tolerance 0.
func CheckCount(name string, actual, expected int, tolerance float64) Check {
	allowedMissing := int(float64(expected) * tolerance)
	minimum := expected - allowedMissing
	c := Check{
		Name:     name,
		Expected: fmt.Sprintf(">= %d (target: %d)", minimum, expected),
		Actual:   fmt.Sprintf("%d", actual),
		Passed:   actual >= minimum,
	}
	if tolerance > 0 {
		c.Details = fmt.Sprintf("tolerance: %.1f%%", tolerance*100)
	}
	return c
}
