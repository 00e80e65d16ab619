// Package stanza holds the structured form of message stanzas handed to the
// storage layer by the transport: a small XML element tree that can be parsed
// from and serialized back to text.
package stanza

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Node is either an *Element or a CharData.
type Node interface{ node() }

// CharData is text content between elements.
type CharData string

func (CharData) node() {}

// Element is an XML element with its attributes and ordered children.
// Name.Space holds the resolved namespace URI.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []Node
}

func (*Element) node() {}

// New returns an empty element.
func New(space, local string) *Element {
	return &Element{Name: xml.Name{Space: space, Local: local}}
}

// Parse reads exactly one element from s.
func Parse(s string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	var (
		root  *Element
		stack []*Element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse stanza: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				el.Attr = append(el.Attr, a)
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("parse stanza: more than one root element")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, errors.New("parse stanza: text outside root element")
				}
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, CharData(t))
		}
	}
	if root == nil {
		return nil, errors.New("parse stanza: no element")
	}
	return root, nil
}

// GetAttr returns the value of the un-namespaced attribute local, or "".
func (e *Element) GetAttr(local string) string {
	for _, a := range e.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces the un-namespaced attribute local.
func (e *Element) SetAttr(local, value string) {
	for i, a := range e.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			e.Attr[i].Value = value
			return
		}
	}
	e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// Child returns the first child element named local. An empty space matches any namespace.
func (e *Element) Child(space, local string) *Element {
	for _, n := range e.Children {
		c, ok := n.(*Element)
		if !ok || c.Name.Local != local {
			continue
		}
		if space == "" || c.Name.Space == space {
			return c
		}
	}
	return nil
}

// ChildText returns the text of the first child element named local, and
// whether such a child exists.
func (e *Element) ChildText(local string) (string, bool) {
	c := e.Child("", local)
	if c == nil {
		return "", false
	}
	return c.Text(), true
}

// AddChild appends a new child element and returns it.
func (e *Element) AddChild(space, local string) *Element {
	c := New(space, local)
	e.Children = append(e.Children, c)
	return c
}

// AddText appends character data.
func (e *Element) AddText(s string) {
	e.Children = append(e.Children, CharData(s))
}

// Text returns the concatenated character data directly under e.
func (e *Element) Text() string {
	var b strings.Builder
	for _, n := range e.Children {
		if t, ok := n.(CharData); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// String serializes the element. Default namespaces are declared only where
// they differ from the parent's.
func (e *Element) String() string {
	var b strings.Builder
	e.write(&b, "")
	return b.String()
}

func (e *Element) write(b *strings.Builder, parentSpace string) {
	b.WriteByte('<')
	b.WriteString(e.Name.Local)
	if e.Name.Space != parentSpace {
		writeAttr(b, "xmlns", e.Name.Space)
	}
	prefixes := 0
	for _, a := range e.Attr {
		switch a.Name.Space {
		case "":
			writeAttr(b, a.Name.Local, a.Value)
		case xmlNamespace, "xml":
			writeAttr(b, "xml:"+a.Name.Local, a.Value)
		default:
			prefixes++
			p := "ns" + strconv.Itoa(prefixes)
			writeAttr(b, "xmlns:"+p, a.Name.Space)
			writeAttr(b, p+":"+a.Name.Local, a.Value)
		}
	}
	if len(e.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, n := range e.Children {
		switch c := n.(type) {
		case *Element:
			c.write(b, e.Name.Space)
		case CharData:
			_ = xml.EscapeText(b, []byte(c))
		}
	}
	b.WriteString("</")
	b.WriteString(e.Name.Local)
	b.WriteByte('>')
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	_ = xml.EscapeText(b, []byte(value))
	b.WriteByte('"')
}
