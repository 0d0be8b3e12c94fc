package view

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToText renders markdown source into a Text view tree instead
// of HTML: emphasis, strong emphasis, and code spans become faced
// Text chunks, and block boundaries (paragraphs, list items) become
// newline-separated chunks. Used for Candidate preview and footer
// content built from markdown strings (SPEC_FULL.md §2).
func MarkdownToText(source string) Text {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	root := Text{}
	first := true
	walkBlock := func(n ast.Node) {
		if !first {
			root.Push(NewText("\n"))
		}
		first = false
		walkInline(&root, n, src, "")
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		walkBlockNode(n, src, &root, walkBlock)
	}
	return root
}

func walkBlockNode(n ast.Node, src []byte, root *Text, emit func(ast.Node)) {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindHeading:
		emit(n)
	case ast.KindListItem:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walkBlockNode(c, src, root, emit)
		}
	case ast.KindList:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walkBlockNode(c, src, root, emit)
		}
	default:
		emit(n)
	}
}

func mergeFace(base, add string) string {
	if base == "" {
		return add
	}
	return base + " " + add
}

func walkInline(root *Text, n ast.Node, src []byte, face string) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			root.Push(NewText(string(node.Segment.Value(src))).withFace(face))
		case *ast.String:
			root.Push(NewText(string(node.Value)).withFace(face))
		case *ast.Emphasis:
			next := face
			if node.Level >= 2 {
				next = mergeFace(face, "bold")
			} else {
				next = mergeFace(face, "italic")
			}
			walkInline(root, node, src, next)
		case *ast.CodeSpan:
			walkInline(root, node, src, mergeFace(face, "code"))
		case *ast.AutoLink:
			root.Push(NewText(string(node.URL(src))).withFace(mergeFace(face, "link")))
		case *ast.Link:
			walkInline(root, node, src, mergeFace(face, "link"))
		default:
			walkInline(root, node, src, face)
		}
	}
}
