package view

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return out
}

func TestIconMinimal(t *testing.T) {
	icon := Icon{Path: "M0 0L1 1"}
	out := decode(t, icon)
	if out["type"] != "glyph" || out["path"] != "M0 0L1 1" {
		t.Fatalf("unexpected icon json: %v", out)
	}
	for _, key := range []string{"view_box", "fill_rule", "size", "fallback", "frame"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %q to be omitted, got %v", key, out[key])
		}
	}
}

func TestValidateIconPath(t *testing.T) {
	if !ValidateIconPath("M0 0 L10 10 Z") {
		t.Error("expected valid path to pass")
	}
	if ValidateIconPath("<script>") {
		t.Error("expected invalid path to fail")
	}
}

func TestParseIconFromRawPath(t *testing.T) {
	icon, err := ParseIcon("M0 0Z")
	if err != nil {
		t.Fatalf("ParseIcon: %v", err)
	}
	if icon.Path != "M0 0Z" {
		t.Errorf("got path %q", icon.Path)
	}
}

func TestParseIconFromJSON(t *testing.T) {
	icon, err := ParseIcon(`{"type":"glyph","path":"M0 0Z","fallback":"?"}`)
	if err != nil {
		t.Fatalf("ParseIcon: %v", err)
	}
	if icon.Fallback != "?" {
		t.Errorf("got fallback %q", icon.Fallback)
	}
}

func TestNewEdgesShorthand(t *testing.T) {
	cases := []struct {
		in   []float64
		want Edges
	}{
		{[]float64{1}, Edges{1, 1, 1, 1}},
		{[]float64{1, 2}, Edges{1, 2, 1, 2}},
		{[]float64{1, 2, 3}, Edges{1, 2, 3, 2}},
		{[]float64{1, 2, 3, 4}, Edges{1, 2, 3, 4}},
	}
	for _, c := range cases {
		got, err := NewEdges(c.in...)
		if err != nil {
			t.Fatalf("NewEdges(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NewEdges(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := NewEdges(1, 2, 3, 4, 5); err == nil {
		t.Error("expected error for 5 values")
	}
}

func TestFieldOmitsDefaults(t *testing.T) {
	out := decode(t, NewField("hello"))
	if out["text"] != "hello" {
		t.Fatalf("unexpected field json: %v", out)
	}
	if _, ok := out["active"]; ok {
		t.Error("expected active to be omitted when true")
	}

	out = decode(t, NewField("hello").Inactivated())
	if out["active"] != false {
		t.Errorf("expected active=false, got %v", out["active"])
	}
}

func TestFieldRef(t *testing.T) {
	ref := 7
	f := Field{Ref: &ref, Text: "fallback"}
	out := decode(t, f)
	if out["text"] != "fallback" {
		t.Errorf("expected text to coexist with ref, got %v", out["text"])
	}
	if out["ref"] != float64(7) {
		t.Errorf("got ref %v", out["ref"])
	}
}

func TestFieldView(t *testing.T) {
	f := Field{Text: "x", View: NewText("embedded")}
	out := decode(t, f)
	if out["view"] != "embedded" {
		t.Errorf("expected embedded view json, got %v", out["view"])
	}
}

func TestCandidateOmitsDefaults(t *testing.T) {
	c := Candidate{Target: []Field{NewField("x")}}
	out := decode(t, c)
	for _, key := range []string{"right", "right_offset", "right_face", "preview", "preview_flex", "hotkey"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %q omitted, got %v", key, out[key])
		}
	}
	if _, ok := out["target"]; !ok {
		t.Error("expected target present")
	}
}

func TestCandidateExtraMerges(t *testing.T) {
	c := Candidate{Target: []Field{NewField("x")}, Extra: map[string]any{"id": "abc"}}
	out := decode(t, c)
	if out["id"] != "abc" {
		t.Errorf("expected extra key to merge, got %v", out)
	}
}

func TestTextCollapsesToBareString(t *testing.T) {
	data, err := json.Marshal(NewText("plain"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"plain"` {
		t.Errorf("expected bare string, got %s", data)
	}
}

func TestTextPushPromotesToList(t *testing.T) {
	text := NewText("a")
	text.Push(NewText("b"))
	data, err := json.Marshal(text)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["a","b"]` {
		t.Errorf("expected bare array, got %s", data)
	}
}

func TestTextWithFaceIsObject(t *testing.T) {
	out := decode(t, NewText("x").withFace("bold"))
	if out["type"] != "text" || out["text"] != "x" || out["face"] != "bold" {
		t.Errorf("unexpected faced text json: %v", out)
	}
}

func TestFlexSerialization(t *testing.T) {
	f := Flex{
		Direction: FlexColumn,
		Children:  []FlexChild{{View: NewText("a")}, {View: NewText("b")}},
	}
	out := decode(t, f)
	if out["type"] != "flex" || out["direction"] != "col" {
		t.Fatalf("unexpected flex json: %v", out)
	}
	if _, ok := out["justify"]; ok {
		t.Error("expected default justify omitted")
	}
}

func TestContainerOmitsZeroSize(t *testing.T) {
	out := decode(t, Container{View: NewText("x")})
	for _, key := range []string{"size", "margins", "vertical", "horizontal", "face"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %q omitted, got %v", key, out[key])
		}
	}
}

func TestRefAndTagAndTraceLayout(t *testing.T) {
	out := decode(t, Ref{Ref: 3})
	if out["type"] != "ref" || out["ref"] != float64(3) {
		t.Errorf("unexpected ref json: %v", out)
	}

	out = decode(t, Tag{Tag: "row-1", View: NewText("x")})
	if out["type"] != "tag" || out["tag"] != "row-1" {
		t.Errorf("unexpected tag json: %v", out)
	}

	out = decode(t, TraceLayout{Msg: "debug", View: NewText("x")})
	if out["type"] != "trace-layout" || out["msg"] != "debug" {
		t.Errorf("unexpected trace-layout json: %v", out)
	}
}

func TestImageSerialization(t *testing.T) {
	img := Image{Height: 2, Width: 3, Channels: 4, Data: []byte{1, 2, 3}}
	out := decode(t, img)
	if out["type"] != "image" || out["channels"] != float64(4) {
		t.Errorf("unexpected image json: %v", out)
	}
}

func TestMarkdownToTextBasic(t *testing.T) {
	result := MarkdownToText("plain **bold** and *italic* and `code`")
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty render")
	}
}

func TestTaggedToCandidate(t *testing.T) {
	cand := &Candidate{Target: []Field{NewField("x")}}
	tagged := Tagged[int]{Value: 42, Candidate: cand}
	var _ ToCandidate = tagged
	if tagged.ToCandidate() != cand {
		t.Error("expected ToCandidate to return the wrapped candidate")
	}
}
