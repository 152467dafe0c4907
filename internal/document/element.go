package document

import "strings"

// Kind identifies the block an Element renders as.
type Kind int

const (
	KindHeading Kind = iota + 1
	KindParagraph
	KindBulletList
	KindNumberedList
	KindQuote
	KindSeparator
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindParagraph:
		return "paragraph"
	case KindBulletList:
		return "bullet_list"
	case KindNumberedList:
		return "numbered_list"
	case KindQuote:
		return "quote"
	case KindSeparator:
		return "separator"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Run is a piece of inline text with emphasis.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
}

// Inline is a sequence of runs forming one line of text.
type Inline []Run

// Text joins the runs without formatting.
func (in Inline) Text() string {
	var b strings.Builder
	for _, r := range in {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Cell is one table cell. Header cells render bold.
type Cell struct {
	Text   string
	Header bool
}

// Element is one top-level block of the output document.
type Element struct {
	Kind Kind
	// Level is set for headings, 1 through 6.
	Level int
	// Text holds heading and quote text.
	Text string
	// Runs holds paragraph content.
	Runs Inline
	// Items holds one entry per direct list item.
	Items []Inline
	// Rows and Cols describe a table grid. Short rows leave trailing cells empty.
	Rows [][]Cell
	Cols int
}

const (
	baseFontSize    = 24
	paragraphSize   = baseFontSize / 2
	separatorLength = 50
	separatorRune   = "―"
)

// HeadingSize shrinks the font by two points per level.
func HeadingSize(level int) uint64 {
	return uint64(baseFontSize - 2*level)
}

// Separator is the centered rule line used for horizontal rules.
func Separator() string {
	return strings.Repeat(separatorRune, separatorLength)
}
