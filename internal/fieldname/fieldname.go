// Package fieldname generates machine names for new form fields.
package fieldname

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/matthewbaird/formdesigner/internal/schema"
)

// Prefix is the prefix of generated field names.
const Prefix = "output_"

var outputName = regexp.MustCompile(`^output_(\d+)$`)

// Number extracts n from a name of the form output_<n>.
func Number(name string) (int, bool) {
	m := outputName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Format returns the generated name for n.
func Format(n int) string {
	return fmt.Sprintf("%s%d", Prefix, n)
}

// MaxNumber returns the largest n among output_<n> names of the
// non-presentational fields, or 0 when there is none.
func MaxNumber(fields []schema.Field) int {
	max := 0
	for _, f := range fields {
		if schema.IsPresentational(f) {
			continue
		}
		if n, ok := Number(f.Name); ok && n > max {
			max = n
		}
	}
	return max
}

// Next returns output_<max+1> over the non-presentational fields. It returns
// output_1 when no field matches the pattern.
func Next(fields []schema.Field) string {
	return Format(MaxNumber(fields) + 1)
}

// NextAfter is like Next but never returns a number at or below floor and
// skips any name already taken by a field, presentational or not.
func NextAfter(fields []schema.Field, floor int) (string, int) {
	n := MaxNumber(fields)
	if floor > n {
		n = floor
	}
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.Name] = true
	}
	for {
		n++
		if name := Format(n); !taken[name] {
			return name, n
		}
	}
}
