package document

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

type implBuilder struct{}

// New creates the docx Builder.
func New() Builder {
	return implBuilder{}
}

// Build parses markup and renders it into a named docx document.
func (implBuilder) Build(markup string) (domain.GeneratedDocument, error) {
	elements, err := Parse(markup)
	if err != nil {
		return domain.GeneratedDocument{}, fmt.Errorf("%w: %w", ErrDocument, err)
	}

	data, err := Render(elements)
	if err != nil {
		return domain.GeneratedDocument{}, fmt.Errorf("%w: %w", ErrDocument, err)
	}

	id := uuid.New()
	return domain.GeneratedDocument{
		ID:       id,
		FileName: id.String() + "." + domain.DocumentExtension,
		Data:     data,
	}, nil
}
