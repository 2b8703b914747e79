package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

// Table-side checks run on the assembled table after building and before
// pushing, so a bad build never reaches the store.

// CheckSchema verifies the table has exactly the expected column names.
func CheckSchema(tbl *table.Table, expected []string) Check {
	actual := tbl.Schema.Names()

	actualSet := make(map[string]bool, len(actual))
	for _, name := range actual {
		actualSet[name] = true
	}
	expectedSet := make(map[string]bool, len(expected))
	for _, name := range expected {
		expectedSet[name] = true
	}

	var missing, extra []string
	for _, name := range expected {
		if !actualSet[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range actual {
		if !expectedSet[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	c := Check{
		Name:     "schema",
		Expected: fmt.Sprintf("%d columns", len(expected)),
		Actual:   fmt.Sprintf("%d columns", len(actual)),
		Passed:   len(missing) == 0 && len(extra) == 0,
	}
	var details []string
	if len(missing) > 0 {
		details = append(details, "missing: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		details = append(details, "extra: "+strings.Join(extra, ", "))
	}
	c.Details = strings.Join(details, "; ")
	return c
}

// CheckRowCount verifies the exact number of rows.
func CheckRowCount(tbl *table.Table, expected int) Check {
	actual := tbl.NumRows()
	return Check{
		Name:     "row_count",
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", actual),
		Passed:   actual == expected,
	}
}

// CheckUniqueValues counts distinct non-null string values in a column.
func CheckUniqueValues(tbl *table.Table, column string, expected int, name string) Check {
	if name == "" {
		name = column + "_unique"
	}
	vals, err := tbl.Column(column)
	if err != nil {
		return errCheck(name, err)
	}
	seen := make(map[string]bool)
	for _, v := range vals {
		if !v.IsNull() {
			seen[v.Str()] = true
		}
	}
	return Check{
		Name:     name,
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", len(seen)),
		Passed:   len(seen) == expected,
	}
}

// CheckNonNullCount counts non-null values in a column.
func CheckNonNullCount(tbl *table.Table, column string, expected int) Check {
	vals, err := tbl.Column(column)
	if err != nil {
		return errCheck(column+"_non_null", err)
	}
	count := 0
	for _, v := range vals {
		if !v.IsNull() {
			count++
		}
	}
	return Check{
		Name:     column + "_non_null",
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", count),
		Passed:   count == expected,
	}
}

// CheckListSessions counts rows with at least one item in a list column.
func CheckListSessions(tbl *table.Table, column string, expected int) Check {
	vals, err := tbl.Column(column)
	if err != nil {
		return errCheck(column+"_sessions", err)
	}
	count := 0
	for _, v := range vals {
		if v.NumItems() > 0 {
			count++
		}
	}
	return Check{
		Name:     column + "_sessions",
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", count),
		Passed:   count == expected,
	}
}

// CheckTotalListItems counts items across all rows of a list column.
func CheckTotalListItems(tbl *table.Table, column string, expected int) Check {
	vals, err := tbl.Column(column)
	if err != nil {
		return errCheck(column+"_total", err)
	}
	total := 0
	for _, v := range vals {
		total += v.NumItems()
	}
	return Check{
		Name:     column + "_total",
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", total),
		Passed:   total == expected,
	}
}

// CheckListAlignment verifies that several list columns have the same item
// count in every row. Used for aligned data like dwi runs with their bvals
// and bvecs.
func CheckListAlignment(tbl *table.Table, columns []string) Check {
	name := "alignment_" + strings.Join(columns, "+")
	const sampleLimit = 5

	var misaligned []string
	for i, row := range tbl.Rows {
		lengths := make(map[int]bool)
		var desc []string
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				return errCheck(name, fmt.Errorf("no column %q", col))
			}
			n := v.NumItems()
			lengths[n] = true
			desc = append(desc, fmt.Sprintf("%s=%d", col, n))
		}
		if len(lengths) > 1 {
			misaligned = append(misaligned, fmt.Sprintf("row %d: %s", i, strings.Join(desc, ", ")))
			if len(misaligned) >= sampleLimit {
				break
			}
		}
	}

	if len(misaligned) == 0 {
		return Check{
			Name:     name,
			Expected: "all rows aligned",
			Actual:   "all rows aligned",
			Passed:   true,
		}
	}
	n := len(misaligned)
	if n > 3 {
		n = 3
	}
	return Check{
		Name:     name,
		Expected: "all rows aligned",
		Actual:   fmt.Sprintf("%d+ misaligned rows", len(misaligned)),
		Details:  strings.Join(misaligned[:n], "; "),
	}
}

func errCheck(name string, err error) Check {
	return Check{
		Name:     name,
		Expected: "check runs",
		Actual:   fmt.Sprintf("error: %v", err),
	}
}
