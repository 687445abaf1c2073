package app

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

const (
	outletMarker = "cardshell-outlet"
	titleMarker  = "cardshell-title"
)

type slot int

const (
	slotOutlet slot = iota
	slotTitle
)

// Document is a host document split around its mount element. The parts
// are rendered once at mount time and reused for every request.
type Document struct {
	MountID   string
	BaseTitle string

	segments []string
	slots    []slot
}

// ParseDocument parses src and prepares the element with id mountID as the
// outlet for page content. Existing children of the mount element are
// dropped. A non-empty script is appended to the body.
func ParseDocument(src []byte, mountID string, script string) (*Document, error) {
	if mountID == "" {
		return nil, apperrors.ErrMountPointMissing(mountID)
	}

	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.NewValidationError("INVALID_HOST_DOCUMENT", "failed to parse host document: "+err.Error())
	}

	mount := findNode(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == mountID
	})
	if mount == nil {
		return nil, apperrors.ErrMountPointMissing(mountID)
	}

	doc := &Document{MountID: mountID}

	clearChildren(mount)
	mount.AppendChild(&html.Node{Type: html.CommentNode, Data: outletMarker})

	if title := findNode(root, isElement(atom.Title)); title != nil {
		doc.BaseTitle = strings.TrimSpace(textOf(title))
		clearChildren(title)
		title.AppendChild(&html.Node{Type: html.CommentNode, Data: titleMarker})
	}

	if script != "" {
		if body := findNode(root, isElement(atom.Body)); body != nil {
			el := &html.Node{
				Type:     html.ElementNode,
				Data:     "script",
				DataAtom: atom.Script,
				Attr:     []html.Attribute{{Key: "data-cardshell", Val: "live-reload"}},
			}
			el.AppendChild(&html.Node{Type: html.TextNode, Data: script})
			body.AppendChild(el)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, apperrors.NewInternalError("RENDER_FAILED", "failed to render host document", err)
	}

	doc.split(buf.String())
	return doc, nil
}

// split cuts rendered at the marker comments, in document order.
func (d *Document) split(rendered string) {
	markers := map[string]slot{
		"<!--" + outletMarker + "-->": slotOutlet,
		"<!--" + titleMarker + "-->":  slotTitle,
	}

	rest := rendered
	for {
		at, found := -1, ""
		for m := range markers {
			if i := strings.Index(rest, m); i >= 0 && (at < 0 || i < at) {
				at, found = i, m
			}
		}
		if at < 0 {
			break
		}
		d.segments = append(d.segments, rest[:at])
		d.slots = append(d.slots, markers[found])
		rest = rest[at+len(found):]
	}
	d.segments = append(d.segments, rest)
}

// Write streams the document with title in the <title> element and body
// inside the mount element.
func (d *Document) Write(w io.Writer, title string, body func(io.Writer) error) error {
	for i, seg := range d.segments {
		if _, err := io.WriteString(w, seg); err != nil {
			return err
		}
		if i >= len(d.slots) {
			continue
		}
		switch d.slots[i] {
		case slotOutlet:
			if err := body(w); err != nil {
				return err
			}
		case slotTitle:
			if _, err := io.WriteString(w, html.EscapeString(d.title(title))); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Document) title(page string) string {
	switch {
	case page == "":
		return d.BaseTitle
	case d.BaseTitle == "":
		return page
	default:
		return page + " | " + d.BaseTitle
	}
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func textOf(n *html.Node) string {
	var text strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return text.String()
}
