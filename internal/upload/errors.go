package upload

import (
	"errors"
	"fmt"
)

// Kind classifies why an upload failed.
type Kind int

const (
	// KindUnknown is used when neither a status code nor a transport error
	// was observed.
	KindUnknown Kind = iota
	// KindNetwork covers DNS, TLS and connection failures as well as
	// cancellation. Use errors.Is(err, context.Canceled) to tell them apart.
	KindNetwork
	// KindHTTP means the store answered with a status other than 200.
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Error is returned by Uploader.Upload for every failed attempt.
type Error struct {
	Kind       Kind
	StatusCode int
	// Body holds the start of the response body for KindHTTP failures.
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("upload failed: http status %d", e.StatusCode)
	case KindNetwork:
		return fmt.Sprintf("upload failed: network error: %v", e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("upload failed: %v", e.Err)
		}
		return "upload failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code renders the error as a stable machine-readable code.
func (e *Error) Code() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("ERR_UPLOAD_FAILED_HTTP_%d", e.StatusCode)
	case KindNetwork:
		return "ERR_UPLOAD_FAILED_NETWORK_ERROR"
	default:
		return "ERR_UPLOAD_FAILED_UNKNOWN"
	}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	return KindUnknown
}
