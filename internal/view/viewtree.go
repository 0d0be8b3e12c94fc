// Package view implements the declarative view model the sweeper
// renders: icons, flex/container layouts, styled text, images, and
// field references, serialized to the wire protocol described in
// spec.md §3-4 (tagged-union JSON, default values omitted).
package view

import "encoding/json"

// View is any node that can appear in a view tree. All concrete types
// in this package implement it.
type View interface {
	json.Marshaler
	isView()
}

// Align is a cross-axis/child alignment choice. The zero value,
// AlignStart, is the wire default and is always omitted.
type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
	AlignExpand
	AlignShrink
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignEnd:
		return "end"
	case AlignExpand:
		return "expand"
	case AlignShrink:
		return "shrink"
	default:
		return "start"
	}
}

// Ref is a placeholder view resolved lazily by the sweep client's
// view_missing handler (spec.md §4.2).
type Ref struct {
	Ref int
}

func (Ref) isView() {}

func (r Ref) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal(map[string]any{"type": "ref", "ref": r.Ref})
}

// TraceLayout wraps a view with a debug label the sweeper echoes back
// in layout traces.
type TraceLayout struct {
	Msg  string
	View View
}

func (TraceLayout) isView() {}

func (t TraceLayout) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal(map[string]any{"type": "trace-layout", "msg": t.Msg, "view": t.View})
}

// Tag attaches an opaque string tag to a view, letting the sweeper
// report which tagged subtree an input event landed in.
type Tag struct {
	Tag  string
	View View
}

func (Tag) isView() {}

func (t Tag) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal(map[string]any{"type": "tag", "tag": t.Tag, "view": t.View})
}

// FlexDirection is the main axis of a Flex container.
type FlexDirection int

const (
	FlexRow FlexDirection = iota
	FlexColumn
)

func (d FlexDirection) String() string {
	if d == FlexColumn {
		return "col"
	}
	return "row"
}

// FlexJustify controls main-axis distribution of a Flex's children.
type FlexJustify int

const (
	JustifyStart FlexJustify = iota
	JustifyCenter
	JustifyEnd
	JustifySpaceBetween
	JustifySpaceAround
)

func (j FlexJustify) String() string {
	switch j {
	case JustifyCenter:
		return "center"
	case JustifyEnd:
		return "end"
	case JustifySpaceBetween:
		return "space-between"
	case JustifySpaceAround:
		return "space-around"
	default:
		return "start"
	}
}

// FlexChild is one child of a Flex container: its view, an optional
// flex-grow weight, an optional face override, and its cross-axis
// alignment.
type FlexChild struct {
	View  View
	Flex  *float64
	Face  string
	Align Align
}

func (c FlexChild) MarshalJSON() ([]byte, error) {
	out := map[string]any{"view": c.View}
	if c.Flex != nil {
		out["flex"] = *c.Flex
	}
	if c.Face != "" {
		out["face"] = c.Face
	}
	if c.Align != AlignStart {
		out["align"] = c.Align.String()
	}
	return wireJSON.Marshal(out)
}

// Flex lays children out along a main axis, the terminal analogue of
// a CSS flexbox row/column (spec.md §4.5).
type Flex struct {
	Direction FlexDirection
	Justify   FlexJustify
	Children  []FlexChild
}

func (Flex) isView() {}

func (f Flex) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type":      "flex",
		"direction": f.Direction.String(),
		"children":  f.Children,
	}
	if f.Justify != JustifyStart {
		out["justify"] = f.Justify.String()
	}
	return wireJSON.Marshal(out)
}

// Container wraps a single child view with sizing, face, alignment,
// and margins.
type Container struct {
	View       View
	Face       string
	Vertical   Align
	Horizontal Align
	Size       CellSize
	Margins    Edges
}

func (Container) isView() {}

func (c Container) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": "container", "view": c.View}
	if c.Face != "" {
		out["face"] = c.Face
	}
	if c.Vertical != AlignStart {
		out["vertical"] = c.Vertical.String()
	}
	if c.Horizontal != AlignStart {
		out["horizontal"] = c.Horizontal.String()
	}
	if !c.Size.IsZero() {
		out["size"] = c.Size
	}
	if !c.Margins.IsZero() {
		out["margins"] = c.Margins
	}
	return wireJSON.Marshal(out)
}

// Text is styled, possibly nested, text content. A Text with no Glyph
// and no Face collapses to a bare JSON string (leaf) or array (when
// pushed into a list) rather than a tagged object — the one exception
// to "every view carries a type" (spec.md §4.5).
type Text struct {
	Str    string
	Chunks []Text
	Glyph  *Icon
	Face   string
}

// NewText builds a leaf text chunk.
func NewText(s string) Text { return Text{Str: s} }

func (t Text) withFace(face string) Text { t.Face = face; return t }

// Push appends chunk to t. Pushing into a leaf promotes it to a list,
// migrating the leaf's own glyph into the first child.
func (t *Text) Push(chunk Text) {
	if t.Chunks == nil {
		first := Text{Str: t.Str, Glyph: t.Glyph, Face: t.Face}
		t.Chunks = []Text{first, chunk}
		t.Str = ""
		t.Glyph = nil
		t.Face = ""
		return
	}
	t.Chunks = append(t.Chunks, chunk)
}

func (Text) isView() {}

func (t Text) MarshalJSON() ([]byte, error) {
	if t.Glyph == nil && t.Face == "" {
		if t.Chunks != nil {
			return wireJSON.Marshal(t.Chunks)
		}
		return wireJSON.Marshal(t.Str)
	}
	out := map[string]any{"type": "text"}
	if t.Chunks != nil {
		out["text"] = t.Chunks
	} else {
		out["text"] = t.Str
	}
	if t.Glyph != nil {
		out["glyph"] = t.Glyph
	}
	if t.Face != "" {
		out["face"] = t.Face
	}
	return wireJSON.Marshal(out)
}

// Image is a raw-pixel bitmap embedded in a view tree. Data is
// row-major, Channels bytes per pixel, and is base64-encoded on the
// wire by the standard []byte JSON encoding.
type Image struct {
	Height, Width int
	Channels      int
	Data          []byte
}

func (Image) isView() {}

func (img Image) MarshalJSON() ([]byte, error) {
	return wireJSON.Marshal(map[string]any{
		"type": "image",
		"size": struct {
			H int `json:"h"`
			W int `json:"w"`
		}{img.Height, img.Width},
		"channels": img.Channels,
		"data":     img.Data,
	})
}
