package ingest

import (
	"github.com/go-playground/validator/v10"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
	"github.com/nguyentantai21042004/protocol-flow/internal/storage"
)

type implService struct {
	objects  storage.ObjectStore
	creator  TaskCreator
	keys     storage.KeyPolicy
	prober   Prober
	validate *validator.Validate
	logger   logger.Logger
}

// New creates a new ingestion Service. prober may be nil, in which case no
// duration is measured.
func New(objects storage.ObjectStore, creator TaskCreator, keys storage.KeyPolicy, prober Prober, log logger.Logger) Service {
	if keys == nil {
		keys = storage.UUIDKeys{}
	}
	return &implService{
		objects:  objects,
		creator:  creator,
		keys:     keys,
		prober:   prober,
		validate: validator.New(),
		logger:   log.With("component", "ingest"),
	}
}
