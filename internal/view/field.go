package view

import "encoding/json"

// Field is one piece of styled, optionally clickable text making up a
// Candidate's target, right-hand, or preview text (spec.md §3).
type Field struct {
	Text string
	// Inactive marks the field as non-matchable/dim. Zero value
	// (false) means active, matching the wire default.
	Inactive bool
	Glyph    *Icon
	// View is an optional embedded view tree rendered in place of Text
	// (spec.md §3's "optional embedded view").
	View View
	Face string
	// Ref defers resolution of this field's view to a field_missing
	// round trip; nil means Text/Glyph/View/Face are used as-is.
	Ref *int
}

// NewField builds a plain active text field.
func NewField(text string) Field { return Field{Text: text} }

// WithFace returns a copy of f with Face set.
func (f Field) WithFace(face string) Field { f.Face = face; return f }

// WithGlyph returns a copy of f with Glyph set.
func (f Field) WithGlyph(icon Icon) Field { f.Glyph = &icon; return f }

// WithView returns a copy of f with an embedded view set.
func (f Field) WithView(v View) Field { f.View = v; return f }

// Inactivated returns a copy of f marked inactive.
func (f Field) Inactivated() Field { f.Inactive = true; return f }

func (f Field) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if f.Text != "" {
		out["text"] = f.Text
	}
	if f.Ref != nil {
		out["ref"] = *f.Ref
	}
	if f.Inactive {
		out["active"] = false
	}
	if f.Glyph != nil {
		out["glyph"] = f.Glyph
	}
	if f.View != nil {
		out["view"] = f.View
	}
	if f.Face != "" {
		out["face"] = f.Face
	}
	return wireJSON.Marshal(out)
}
