package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidClassName is matched by every InvalidClassNameError.
var ErrInvalidClassName = errors.New("invalid class name")

// InvalidClassNameError lists the requested names that are not in the catalog.
type InvalidClassNameError struct {
	// Bad holds every unrecognized token, as decoded.
	Bad []string
	// Choices holds every valid class name in index order.
	Choices []string
}

func (e *InvalidClassNameError) Error() string {
	return fmt.Sprintf("Invalid class(es): %s. Choices: %s",
		strings.Join(e.Bad, ", "), strings.Join(e.Choices, ", "))
}

// Is reports whether target is ErrInvalidClassName.
func (e *InvalidClassNameError) Is(target error) bool {
	return target == ErrInvalidClassName
}

// Filter is the ordered set of class indices kept for one request.
type Filter struct {
	ids  []int
	keep map[int]struct{}
}

// NewFilter builds a filter from class indices.
func NewFilter(ids ...int) Filter {
	f := Filter{
		ids:  append([]int(nil), ids...),
		keep: make(map[int]struct{}, len(ids)),
	}
	for _, id := range ids {
		f.keep[id] = struct{}{}
	}
	return f
}

// Contains reports whether detections of class id survive the filter.
func (f Filter) Contains(id int) bool {
	_, ok := f.keep[id]
	return ok
}

// IDs returns the indices in the order they were requested.
func (f Filter) IDs() []int {
	return append([]int(nil), f.ids...)
}

// Len returns the number of requested indices, duplicates included.
func (f Filter) Len() int {
	return len(f.ids)
}

// ParseFilter parses a comma separated list of class names.
//
// Each token is URL-decoded (query semantics, so "+" is a space), trimmed and
// matched case-insensitively. Validation is all-or-nothing: a single unknown
// token fails the whole list with an *InvalidClassNameError.
//
// Arguments:
//   - raw: The raw list, e.g. "Excavator,Blast%20rig".
//
// Returns:
//   - Filter: The requested class indices.
//   - error: An *InvalidClassNameError naming every bad token.
func (c *Catalog) ParseFilter(raw string) (Filter, error) {
	var (
		ids []int
		bad []string
	)

	for _, token := range strings.Split(raw, ",") {
		name, err := url.QueryUnescape(token)
		if err != nil {
			bad = append(bad, strings.TrimSpace(token))
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))

		idx, ok := c.Lookup(name)
		if !ok {
			bad = append(bad, name)
			continue
		}
		ids = append(ids, idx)
	}

	if len(bad) > 0 {
		return Filter{}, &InvalidClassNameError{Bad: bad, Choices: c.Names()}
	}

	return NewFilter(ids...), nil
}
