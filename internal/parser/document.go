package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	reHTMLish = regexp.MustCompile(`(?i)<\s*(?:html|body|table|tr|td|div|span|p|br)\b[^>]*>`)
	reSpaces  = regexp.MustCompile(`[ \t\f\v\r\x{00A0}]+`)
)

var blockElements = map[atom.Atom]bool{
	atom.Tr: true, atom.P: true, atom.Div: true, atom.Li: true, atom.Table: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Header: true, atom.Footer: true, atom.Form: true, atom.Fieldset: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true, atom.Template: true,
}

// Row is one table row (or one markdown table line) split into cells.
type Row struct {
	Cells  []string
	Header bool
}

func (r Row) Text() string {
	return strings.Join(r.Cells, " | ")
}

// Document is a fetched receipt prepared once for every strategy: the parsed
// HTML tree when the input is markup, plus a line-structured text rendition.
type Document struct {
	Raw  string
	HTML *goquery.Document
	Text string

	lines []string
	rows  []Row
	// itemRows is how many rows precede the first footer found outside a row.
	itemRows int
}

func NewDocument(raw string) *Document {
	doc := &Document{Raw: raw}
	if reHTMLish.MatchString(raw) {
		if parsed, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			doc.HTML = parsed
		}
	}

	if doc.HTML != nil {
		var b strings.Builder
		for _, n := range doc.HTML.Nodes {
			renderText(n, &b)
		}
		doc.lines = splitLines(b.String())
		doc.rows = htmlRows(doc.HTML)
		doc.itemRows = len(doc.rows)
		for _, n := range doc.HTML.Nodes {
			if cut, ok := rowsBeforeFooter(n, new(int)); ok {
				doc.itemRows = cut
				break
			}
		}
	} else {
		doc.lines = splitLines(raw)
		doc.rows, doc.itemRows = markdownRows(doc.lines)
	}
	doc.Text = strings.Join(doc.lines, "\n")
	return doc
}

func (d *Document) Lines() []string { return d.lines }

func (d *Document) Rows() []Row { return d.rows }

// ItemRows are the rows that come before the "total items" footer in document
// order. A footer inside a row is left to the row policy.
func (d *Document) ItemRows() []Row { return d.rows[:d.itemRows] }

// rowsBeforeFooter walks the tree in document order, counting rows the way
// htmlRows does, and stops at the first footer text that sits outside a row.
func rowsBeforeFooter(n *html.Node, seen *int) (int, bool) {
	switch n.Type {
	case html.TextNode:
		if isFooterRow(n.Data) {
			return *seen, true
		}
		return 0, false
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return 0, false
		}
		if n.DataAtom == atom.Tr {
			if isRow(n) {
				*seen++
			}
			return 0, false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if cut, ok := rowsBeforeFooter(c, seen); ok {
			return cut, true
		}
	}
	return 0, false
}

func isRow(tr *html.Node) bool {
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			return true
		}
	}
	return false
}

func renderText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			b.WriteByte('\n')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}
	if n.Type != html.ElementNode {
		return
	}
	if blockElements[n.DataAtom] {
		b.WriteByte('\n')
	} else {
		b.WriteByte(' ')
	}
}

// cellText flattens a cell, keeping a space between inline elements so that
// "<strong>UN:</strong>KG" reads as "UN: KG".
func cellText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return collapse(b.String())
}

func htmlRows(doc *goquery.Document) []Row {
	rows := []Row{}
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		row := Row{Header: tr.ChildrenFiltered("td").Length() == 0}
		cells.Each(func(_ int, cell *goquery.Selection) {
			row.Cells = append(row.Cells, cellText(cell.Nodes[0]))
		})
		rows = append(rows, row)
	})
	return rows
}

// markdownRows reads "| a | b |" lines produced by read-through renderers. It
// also reports how many rows precede a footer line printed outside the table.
func markdownRows(lines []string) ([]Row, int) {
	rows := []Row{}
	cut := -1
	for _, line := range lines {
		if strings.Count(line, "|") < 2 {
			if cut < 0 && isFooterRow(line) {
				cut = len(rows)
			}
			continue
		}
		parts := strings.Split(strings.Trim(line, "|"), "|")
		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, collapse(p))
		}
		if isMarkdownRule(cells) {
			continue
		}
		rows = append(rows, Row{Cells: cells})
	}
	if cut < 0 {
		cut = len(rows)
	}
	return rows, cut
}

func isMarkdownRule(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = collapse(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}
