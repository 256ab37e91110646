package compressor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSelection is returned when a batch has no image files.
	ErrNoSelection = errors.New("no image files selected")
	// ErrInvalidQuality is returned for a quality outside [0, 1] (or 0-100 as a percentage).
	ErrInvalidQuality = errors.New("invalid quality")
)

// DecodeError reports that a file's bytes could not be read as an image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports that the encoder could not produce output for a file.
type EncodeError struct {
	Name string
	Mime string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s as %s: %v", e.Name, e.Mime, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// failureOperation names the pipeline stage an error came from.
func failureOperation(err error) string {
	var decErr *DecodeError
	var encErr *EncodeError
	switch {
	case errors.As(err, &decErr):
		return "decode"
	case errors.As(err, &encErr):
		return "encode"
	default:
		return "compress"
	}
}
