package transcriber

import "errors"

// ErrTranscription matches every error returned by this package.
var ErrTranscription = errors.New("transcription failed")

var (
	ErrUpload        = errors.New("audio upload failed")
	ErrSubmission    = errors.New("recognition submit failed")
	ErrDownload      = errors.New("result download failed")
	ErrAuthorization = errors.New("authorization failed")
	ErrTaskFailed    = errors.New("recognition task failed")
	ErrTaskTimeout   = errors.New("recognition task timed out")
)

// Error records which protocol step failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "transcriber " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTranscription }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Err: err}
}
