package area

import "fmt"

// InputError reports a feature source that is missing or unreadable.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("area: input: %v", e.Err)
	}
	return fmt.Sprintf("area: input %s: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// SchemaError reports features without any attribute usable as a name.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "area: schema: " + e.Reason
}

// GeometryError reports a feature whose geometry has no measurable area.
type GeometryError struct {
	Index int
	Name  string
	Err   error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("area: feature %d (%q): %v", e.Index, e.Name, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }
