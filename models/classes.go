// Package models - Detection class catalogs and per-request class filters.
package models

import (
	"fmt"
	"image/color"
	"strings"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
	// The outline color used when a detection of this class is drawn.
	Color color.RGBA
}

// Catalog is an immutable set of output classes.
//
// Names are matched case-insensitively, indices are dense (0..N-1) and every
// class carries its own display color, so the name->index and name->color
// mappings always share the same key set.
type Catalog struct {
	classes []OutputClass
	// nameToIdx for fast lookup by lower-cased name
	nameToIdx map[string]int
}

// NewCatalog validates and indexes the given classes.
//
// Arguments:
//   - classes: The classes in index order.
//
// Returns:
//   - *Catalog: The catalog.
//   - error: An error if the indices are not dense or a name is repeated.
func NewCatalog(classes ...OutputClass) (*Catalog, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("catalog requires at least one class")
	}

	c := &Catalog{
		classes:   make([]OutputClass, len(classes)),
		nameToIdx: make(map[string]int, len(classes)),
	}
	for i, class := range classes {
		if class.Index != i {
			return nil, fmt.Errorf("class %q has index %d, expected %d", class.Name, class.Index, i)
		}
		key := strings.ToLower(strings.TrimSpace(class.Name))
		if key == "" {
			return nil, fmt.Errorf("class %d has an empty name", i)
		}
		if _, dup := c.nameToIdx[key]; dup {
			return nil, fmt.Errorf("class name %q registered twice", class.Name)
		}
		c.nameToIdx[key] = i
		c.classes[i] = class
	}

	return c, nil
}

// MustCatalog is NewCatalog for package-level catalogs. It panics on error.
func MustCatalog(classes ...OutputClass) *Catalog {
	c, err := NewCatalog(classes...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of classes.
func (c *Catalog) Len() int {
	return len(c.classes)
}

// Classes returns a copy of the classes in index order.
func (c *Catalog) Classes() []OutputClass {
	out := make([]OutputClass, len(c.classes))
	copy(out, c.classes)
	return out
}

// Names returns the class names in index order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.classes))
	for i, class := range c.classes {
		names[i] = class.Name
	}
	return names
}

// Lookup returns the index for a class name, ignoring case.
func (c *Catalog) Lookup(name string) (int, bool) {
	idx, ok := c.nameToIdx[strings.ToLower(name)]
	return idx, ok
}

// Name returns the class name for an index, or "" when out of range.
func (c *Catalog) Name(idx int) string {
	if idx < 0 || idx >= len(c.classes) {
		return ""
	}
	return c.classes[idx].Name
}

// Color returns the display color for an index.
func (c *Catalog) Color(idx int) (color.RGBA, bool) {
	if idx < 0 || idx >= len(c.classes) {
		return color.RGBA{}, false
	}
	return c.classes[idx].Color, true
}

// Display colors shared by the built-in catalogs.
var (
	Red    = color.RGBA{R: 255, A: 255}
	Blue   = color.RGBA{B: 255, A: 255}
	Green  = color.RGBA{G: 128, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
)

// MiningClasses is the catalog of the mining equipment detection model.
var MiningClasses = MustCatalog(
	OutputClass{0, "Blast rig", Red},
	OutputClass{1, "Dumper truck", Blue},
	OutputClass{2, "Excavator", Green},
	OutputClass{3, "car", Yellow},
)
