package scenario

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

// Element is a generic, tag-agnostic view of one XML node: its attributes
// and child elements. ParseElement builds a tree of these independently of
// the typed Document, giving callers a hierarchical attribute query (path
// of tag names + attribute name → value) and child-subtree iteration over
// a scenario document without committing to the fixed step/group schema —
// useful for diagnostics and for any future element the schema grows.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []*Element
}

// ParseElement parses data into a tree of Elements rooted at the document
// element.
func ParseElement(data []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "scenario: tokenizing element tree")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			e := &Element{Tag: t.Name.Local, Attrs: map[string]string{}}
			for _, a := range t.Attr {
				e.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			} else {
				root = e
			}
			stack = append(stack, e)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if root == nil {
		return nil, errors.New("scenario: empty document")
	}
	return root, nil
}

// Attr resolves path (a sequence of child tag names below this element) to
// the first matching descendant, then returns the value of its name
// attribute.
func (e *Element) Attr(path []string, name string) (string, bool) {
	target := e.descend(path)
	if target == nil {
		return "", false
	}
	v, ok := target.Attrs[name]
	return v, ok
}

// ChildrenAt resolves path the same way as Attr, then returns every direct
// child of the resolved element.
func (e *Element) ChildrenAt(path []string) []*Element {
	target := e.descend(path)
	if target == nil {
		return nil
	}
	return target.Children
}

func (e *Element) descend(path []string) *Element {
	cur := e
	for _, tag := range path {
		var next *Element
		for _, c := range cur.Children {
			if c.Tag == tag {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
