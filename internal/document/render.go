package document

import (
	"bytes"
	"fmt"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
)

const (
	fontName   = "Times New Roman"
	fontColor  = "000000"
	tableStyle = "TableGrid"
)

// Render writes elements into a new docx document and returns its bytes.
func Render(elements []Element) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}

	for _, el := range elements {
		switch el.Kind {
		case KindHeading:
			p, err := doc.AddHeading(el.Text, uint(el.Level))
			if err != nil {
				return nil, fmt.Errorf("heading level %d: %w", el.Level, err)
			}
			styleHeading(p, HeadingSize(el.Level))
		case KindParagraph:
			addRuns(doc.AddEmptyParagraph(), el.Runs)
		case KindBulletList:
			for _, item := range el.Items {
				p := doc.AddEmptyParagraph()
				p.Style("List Bullet")
				addRuns(p, item)
			}
		case KindNumberedList:
			for _, item := range el.Items {
				p := doc.AddEmptyParagraph()
				p.Style("List Number")
				addRuns(p, item)
			}
		case KindQuote:
			addRun(doc.AddEmptyParagraph(), `"`+el.Text+`"`, false, true, paragraphSize)
		case KindSeparator:
			doc.AddEmptyParagraph()
			p := doc.AddEmptyParagraph()
			p.Justification(stypes.JustificationCenter)
			addRun(p, Separator(), false, false, paragraphSize)
			doc.AddEmptyParagraph()
		case KindTable:
			renderTable(doc, el)
		}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTable(doc *docx.RootDoc, el Element) {
	table := doc.AddTable()
	table.Style(tableStyle)

	for _, cells := range el.Rows {
		row := table.AddRow()
		for i := 0; i < el.Cols; i++ {
			p := row.AddCell().AddEmptyPara()
			if i >= len(cells) {
				continue
			}
			addRun(p, cells[i].Text, cells[i].Header, false, paragraphSize)
		}
	}
}

// styleHeading keeps the HeadingN paragraph style and applies the protocol
// font to the text run added with it.
func styleHeading(p *docx.Paragraph, size uint64) {
	for _, child := range p.GetCT().Children {
		if child.Run == nil {
			continue
		}
		child.Run.Property = &ctypes.RunProperty{
			Fonts: &ctypes.RunFonts{Ascii: fontName, HAnsi: fontName},
			Bold:  ctypes.OnOffFromBool(true),
			Size:  ctypes.NewFontSize(size * 2),
			Color: ctypes.NewColor(fontColor),
		}
	}
}

func addRun(p *docx.Paragraph, text string, bold, italic bool, size uint64) {
	if text == "" {
		return
	}
	run := p.AddText(text).Font(fontName).Size(size).Color(fontColor)
	if bold {
		run.Bold(true)
	}
	if italic {
		run.Italic(true)
	}
}

func addRuns(p *docx.Paragraph, runs Inline) {
	for _, r := range runs {
		addRun(p, r.Text, r.Bold, r.Italic, paragraphSize)
	}
}
