package view

import (
	"encoding/json"
	"fmt"
	"strings"
)

// iconPathAlphabet lists every character an Icon.Path may contain
// (spec.md §4.5's icon path validation), plus ASCII whitespace.
const iconPathAlphabet = "+-e0123456789.,MmZzLlHhVvCcSsQqTtAa"

// Edges is a CSS top/right/bottom/left quantity, used for Icon frame
// margins/borders/padding and for Container margins.
type Edges struct {
	Top, Right, Bottom, Left float64
}

// IsZero reports whether all four edges are zero (used to decide
// whether to omit a margins/size-like field entirely).
func (e Edges) IsZero() bool {
	return e.Top == 0 && e.Right == 0 && e.Bottom == 0 && e.Left == 0
}

// NewEdges expands 1, 2, 3, or 4 values using the usual CSS shorthand
// rules. Any other count is an error.
func NewEdges(values ...float64) (Edges, error) {
	switch len(values) {
	case 1:
		v := values[0]
		return Edges{v, v, v, v}, nil
	case 2:
		return Edges{values[0], values[1], values[0], values[1]}, nil
	case 3:
		return Edges{values[0], values[1], values[2], values[1]}, nil
	case 4:
		return Edges{values[0], values[1], values[2], values[3]}, nil
	default:
		return Edges{}, fmt.Errorf("view: edges take 1-4 values, got %d", len(values))
	}
}

func (e Edges) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal([4]float64{e.Top, e.Right, e.Bottom, e.Left})
}

// CellSize is a (height, width) pair used for Icon terminal cell sizing
// and Container sizing.
type CellSize struct {
	Height, Width float64
}

// IsZero reports whether both dimensions are zero.
func (s CellSize) IsZero() bool { return s.Height == 0 && s.Width == 0 }

func (s CellSize) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal(struct {
		H float64 `json:"h"`
		W float64 `json:"w"`
	}{s.Height, s.Width})
}

// Frame is an Icon's decorative border/margin/padding/fill.
type Frame struct {
	Margin       Edges
	BorderWidth  Edges
	BorderRadius Edges
	BorderColor  string
	Padding      Edges
	FillColor    string
}

// Icon is a scalable SVG-path glyph (spec.md §3).
type Icon struct {
	Path     string
	ViewBox  *[4]float64
	FillRule string
	Size     *CellSize
	Fallback string
	Frame    *Frame
}

// ValidateIconPath reports whether path contains only the restricted
// alphabet of SVG path commands, numeric separators, and whitespace.
func ValidateIconPath(path string) bool {
	for _, r := range path {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if strings.ContainsRune(iconPathAlphabet, r) {
			continue
		}
		return false
	}
	return true
}

// ParseIcon parses text as an Icon. It first tries to interpret text
// as a JSON-encoded Icon; if that fails and text passes
// ValidateIconPath, text is treated as a raw path string.
func ParseIcon(text string) (*Icon, error) {
	var wire iconJSON
	if err := wireJSON.Unmarshal([]byte(text), &wire); err == nil {
		return wire.toIcon()
	}
	if !ValidateIconPath(text) {
		return nil, fmt.Errorf("view: %q is neither a JSON icon nor a valid path", text)
	}
	return &Icon{Path: text}, nil
}

// isView marks Icon as a View variant (it may be embedded directly in
// a view tree, not only as a Field glyph).
func (Icon) isView() {}

type frameJSON struct {
	Margin       *[4]float64 `json:"margin,omitempty"`
	BorderWidth  *[4]float64 `json:"border_width,omitempty"`
	BorderRadius *[4]float64 `json:"border_radius,omitempty"`
	BorderColor  string      `json:"border_color,omitempty"`
	Padding      *[4]float64 `json:"padding,omitempty"`
	FillColor    string      `json:"fill_color,omitempty"`
}

type iconJSON struct {
	Type     string      `json:"type"`
	Path     string      `json:"path"`
	ViewBox  *[4]float64 `json:"view_box,omitempty"`
	FillRule string      `json:"fill_rule,omitempty"`
	Size     *CellSize   `json:"size,omitempty"`
	Fallback string      `json:"fallback,omitempty"`
	Frame    *frameJSON  `json:"frame,omitempty"`
}

func edgesFromArray(a *[4]float64) Edges {
	if a == nil {
		return Edges{}
	}
	return Edges{Top: a[0], Right: a[1], Bottom: a[2], Left: a[3]}
}

func (w iconJSON) toIcon() (*Icon, error) {
	if !ValidateIconPath(w.Path) {
		return nil, fmt.Errorf("view: icon path %q contains characters outside the allowed alphabet", w.Path)
	}
	icon := &Icon{
		Path:     w.Path,
		ViewBox:  w.ViewBox,
		FillRule: w.FillRule,
		Size:     w.Size,
		Fallback: w.Fallback,
	}
	if w.Frame != nil {
		icon.Frame = &Frame{
			Margin:       edgesFromArray(w.Frame.Margin),
			BorderWidth:  edgesFromArray(w.Frame.BorderWidth),
			BorderRadius: edgesFromArray(w.Frame.BorderRadius),
			BorderColor:  w.Frame.BorderColor,
			Padding:      edgesFromArray(w.Frame.Padding),
			FillColor:    w.Frame.FillColor,
		}
	}
	return icon, nil
}

// MarshalJSON serializes an Icon, always including type="glyph" and
// path, and dropping view box, fill rule, size, fallback, and frame
// when absent (spec.md §4.5).
func (icon Icon) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type": "glyph",
		"path": icon.Path,
	}
	if icon.ViewBox != nil {
		out["view_box"] = *icon.ViewBox
	}
	if icon.FillRule != "" {
		out["fill_rule"] = icon.FillRule
	}
	if icon.Size != nil && !icon.Size.IsZero() {
		out["size"] = *icon.Size
	}
	if icon.Fallback != "" {
		out["fallback"] = icon.Fallback
	}
	if icon.Frame != nil {
		frame := map[string]any{}
		if !icon.Frame.Margin.IsZero() {
			frame["margin"] = icon.Frame.Margin
		}
		if !icon.Frame.BorderWidth.IsZero() {
			frame["border_width"] = icon.Frame.BorderWidth
		}
		if !icon.Frame.BorderRadius.IsZero() {
			frame["border_radius"] = icon.Frame.BorderRadius
		}
		if icon.Frame.BorderColor != "" {
			frame["border_color"] = icon.Frame.BorderColor
		}
		if !icon.Frame.Padding.IsZero() {
			frame["padding"] = icon.Frame.Padding
		}
		if icon.Frame.FillColor != "" {
			frame["fill_color"] = icon.Frame.FillColor
		}
		if len(frame) > 0 {
			out["frame"] = frame
		}
	}
	return wireJSON.Marshal(out)
}
