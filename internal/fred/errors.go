package fred

import (
	"errors"
	"fmt"

	"macrodash/internal/model"
)

// ErrEmptyIdentifier is returned before any network call when the id is blank.
var ErrEmptyIdentifier = errors.New("fred: empty series identifier")

// Sentinels matched by FetchError.Is, so callers can write
// errors.Is(err, fred.ErrUnreachable) without unpacking the struct.
var (
	ErrUnreachable = errors.New("fred: endpoint unreachable")
	ErrBadStatus   = errors.New("fred: unexpected response status")
)

// Kind classifies a FetchError.
type Kind int

const (
	// Unreachable covers transport failures: DNS, connect, TLS, timeout, cancellation.
	Unreachable Kind = iota + 1
	// BadStatus is a non-2xx HTTP response.
	BadStatus
)

func (k Kind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case BadStatus:
		return "bad_status"
	default:
		return "unknown"
	}
}

// FetchError is the single failure type returned by Client.Fetch.
type FetchError struct {
	Kind       Kind
	SeriesID   model.SeriesID
	StatusCode int    // set for BadStatus
	Message    string // provider error_message, when present
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case BadStatus:
		if e.Message != "" {
			return fmt.Sprintf("fred: series %s: status %d: %s", e.SeriesID, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("fred: series %s: status %d", e.SeriesID, e.StatusCode)
	default:
		return fmt.Sprintf("fred: series %s unreachable: %v", e.SeriesID, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return e.Kind == Unreachable
	case ErrBadStatus:
		return e.Kind == BadStatus
	}
	return false
}
