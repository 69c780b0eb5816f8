package vrt

import (
	"fmt"
	"sort"
	"strings"
)

// Field describes one sub-field of a 32-bit word. A field with an empty name
// is reserved.
type Field struct {
	Name  string
	Width uint
}

// Layout splits a 32-bit word into named fields. The first field occupies the
// most-significant bits.
type Layout struct {
	fields []Field
	shifts []uint
}

// NewLayout validates the field list and precomputes shifts.
func NewLayout(fields ...Field) (*Layout, error) {
	var total uint
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Width == 0 {
			return nil, fmt.Errorf("%w: field %q has zero width", ErrLayoutWidth, f.Name)
		}
		if f.Name != "" {
			if seen[f.Name] {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
			}
			seen[f.Name] = true
		}
		total += f.Width
	}
	if total != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrLayoutWidth, total)
	}

	shifts := make([]uint, len(fields))
	remaining := uint(32)
	for i, f := range fields {
		remaining -= f.Width
		shifts[i] = remaining
	}
	return &Layout{fields: append([]Field(nil), fields...), shifts: shifts}, nil
}

// MustLayout is like NewLayout but panics on an invalid layout. It is meant
// for package-level layouts.
func MustLayout(fields ...Field) *Layout {
	l, err := NewLayout(fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// Fields returns a copy of the field descriptors.
func (l *Layout) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

// Decode extracts every named field from word.
func (l *Layout) Decode(word uint32) map[string]uint32 {
	out := make(map[string]uint32, len(l.fields))
	for i, f := range l.fields {
		if f.Name == "" {
			continue
		}
		mask := uint32(1)<<f.Width - 1
		out[f.Name] = (word >> l.shifts[i]) & mask
	}
	return out
}

// Encode rebuilds a word from field values. Missing names encode as zero;
// unknown names and out-of-range values are rejected.
func (l *Layout) Encode(values map[string]uint32) (uint32, error) {
	known := 0
	var word uint32
	for i, f := range l.fields {
		if f.Name == "" {
			continue
		}
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		known++
		if uint64(v) >= uint64(1)<<f.Width {
			return 0, fmt.Errorf("%w: %s=%d (width %d)", ErrFieldOverflow, f.Name, v, f.Width)
		}
		word |= v << l.shifts[i]
	}
	if known != len(values) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, l.unknownNames(values))
	}
	return word, nil
}

func (l *Layout) unknownNames(values map[string]uint32) string {
	var names []string
	for name := range values {
		found := false
		for _, f := range l.fields {
			if f.Name == name {
				found = true
				break
			}
		}
		if !found {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Format renders a decoded word as name=value pairs in layout order.
func (l *Layout) Format(word uint32) string {
	values := l.Decode(word)
	parts := make([]string, 0, len(values))
	for _, f := range l.fields {
		if f.Name == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", f.Name, values[f.Name]))
	}
	return fmt.Sprintf("word=0x%08x, %s", word, strings.Join(parts, ", "))
}
