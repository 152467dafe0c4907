package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Parse maps every top-level markup block to at most one Element, keeping order.
// Blocks without a mapping are dropped, as are tables without rows.
func Parse(markup string) ([]Element, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(markup), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var elements []Element
	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		if el, ok := toElement(s); ok {
			elements = append(elements, el)
		}
	})
	return elements, nil
}

func toElement(s *goquery.Selection) (Element, bool) {
	switch name := goquery.NodeName(s); name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return Element{Kind: KindHeading, Level: int(name[1] - '0'), Text: plainText(s)}, true
	case "p":
		return Element{Kind: KindParagraph, Runs: inlineRuns(s)}, true
	case "ul":
		return Element{Kind: KindBulletList, Items: listItems(s)}, true
	case "ol":
		return Element{Kind: KindNumberedList, Items: listItems(s)}, true
	case "blockquote":
		return Element{Kind: KindQuote, Text: plainText(s)}, true
	case "hr":
		return Element{Kind: KindSeparator}, true
	case "table":
		return tableElement(s)
	default:
		return Element{}, false
	}
}

func listItems(s *goquery.Selection) []Inline {
	var items []Inline
	s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		items = append(items, inlineRuns(li))
	})
	return items
}

func tableElement(s *goquery.Selection) (Element, bool) {
	rows := s.Find("tr")
	if rows.Length() == 0 {
		return Element{}, false
	}

	el := Element{Kind: KindTable}
	rows.Each(func(_ int, tr *goquery.Selection) {
		var row []Cell
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, Cell{
				Text:   plainText(cell),
				Header: goquery.NodeName(cell) == "th",
			})
		})
		if len(row) > el.Cols {
			el.Cols = len(row)
		}
		el.Rows = append(el.Rows, row)
	})
	return el, true
}

func plainText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// inlineRuns flattens inline markup into runs. Nested lists are skipped so a
// list item yields only its own text.
func inlineRuns(s *goquery.Selection) Inline {
	var runs Inline
	collectRuns(s, false, false, &runs)
	return normalizeRuns(runs)
}

func collectRuns(s *goquery.Selection, bold, italic bool, out *Inline) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			*out = append(*out, Run{Text: c.Text(), Bold: bold, Italic: italic})
		case "strong", "b":
			collectRuns(c, true, italic, out)
		case "em", "i":
			collectRuns(c, bold, true, out)
		case "br":
			*out = append(*out, Run{Text: " ", Bold: bold, Italic: italic})
		case "ul", "ol":
		default:
			collectRuns(c, bold, italic, out)
		}
	})
}

// normalizeRuns collapses whitespace, merges equally formatted neighbours and
// trims the line ends.
func normalizeRuns(runs Inline) Inline {
	var merged Inline
	for _, r := range runs {
		r.Text = collapseSpaces(r.Text)
		if r.Text == "" {
			continue
		}
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if strings.HasSuffix(last.Text, " ") && strings.HasPrefix(r.Text, " ") {
				r.Text = strings.TrimPrefix(r.Text, " ")
			}
			if last.Bold == r.Bold && last.Italic == r.Italic {
				last.Text += r.Text
				continue
			}
		}
		if r.Text != "" {
			merged = append(merged, r)
		}
	}

	if len(merged) == 0 {
		return nil
	}
	merged[0].Text = strings.TrimLeft(merged[0].Text, " ")
	merged[len(merged)-1].Text = strings.TrimRight(merged[len(merged)-1].Text, " ")

	out := merged[:0]
	for _, r := range merged {
		if r.Text != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collapseSpaces turns every whitespace sequence into one space, keeping edges.
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	lead := strings.IndexFunc(s[:1], isSpace) == 0
	trail := strings.LastIndexFunc(s[len(s)-1:], isSpace) == 0
	body := strings.Join(strings.Fields(s), " ")
	if body == "" {
		return " "
	}
	if lead {
		body = " " + body
	}
	if trail {
		body += " "
	}
	return body
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}
