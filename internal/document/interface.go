package document

import (
	"errors"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Builder converts protocol markup into an office document.
type Builder interface {
	Build(markup string) (domain.GeneratedDocument, error)
}

// ErrDocument wraps every build failure.
var ErrDocument = errors.New("document build failed")
