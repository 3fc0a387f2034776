// Package report turns search results into presentable records: plain text
// for the terminal, an HTML page for sharing, and ULID-stamped reports for
// the run history.
package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WriteHTML renders the report as a standalone HTML page.
func WriteHTML(w io.Writer, r Report) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html)
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(withText(element(atom.Title), "Proof "+r.ID))
	root.AppendChild(head)

	body := element(atom.Body)
	root.AppendChild(body)

	body.AppendChild(withText(element(atom.H1), "Goal: "+strings.Join(r.Goal, ", ")))

	meta := element(atom.Dl)
	addTerm(meta, "Known", strings.Join(r.Known, ", "))
	addTerm(meta, "Method", r.Method)
	addTerm(meta, "Verdict", string(r.Verdict))
	if r.Proved() {
		addTerm(meta, "Depth", fmt.Sprint(r.Depth))
	}
	addTerm(meta, "Elapsed", r.Elapsed.String())
	body.AppendChild(meta)

	if r.Proved() && len(r.Proof) > 0 {
		list := element(atom.Ol, html.Attribute{Key: "class", Val: "proof"})
		for i, line := range r.Lines() {
			item := withText(element(atom.Li), line)
			if i < len(r.States) {
				state := withText(element(atom.Span, html.Attribute{Key: "class", Val: "state"}), r.States[i])
				item.AppendChild(element(atom.Br))
				item.AppendChild(state)
			}
			list.AppendChild(item)
		}
		body.AppendChild(list)
	}

	return html.Render(w, doc)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func withText(n *html.Node, text string) *html.Node {
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func addTerm(dl *html.Node, term, def string) {
	dl.AppendChild(withText(element(atom.Dt), term))
	dl.AppendChild(withText(element(atom.Dd), def))
}
