package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutOfOrderSample is returned when a sample does not advance the buffer clock.
	ErrOutOfOrderSample = errors.New("sample timestamp is not after the latest recorded sample")
	// ErrInsufficientHistory means a detector declined: not enough samples buffered.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInsufficientOverlap means two series share too few timestamps to correlate.
	ErrInsufficientOverlap = errors.New("insufficient aligned overlap")
	// ErrDegenerateDistribution means the input has zero variance.
	ErrDegenerateDistribution = errors.New("degenerate distribution")
	// ErrInvalidSample is returned for samples with missing or negative fields.
	ErrInvalidSample = errors.New("invalid sample")
)

// OutOfOrderError carries the rejected and latest timestamps of a write.
type OutOfOrderError struct {
	AssetID  string
	Latest   time.Time
	Rejected time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("%s: %s (latest=%s rejected=%s)", e.AssetID, ErrOutOfOrderSample.Error(),
		e.Latest.Format(time.RFC3339Nano), e.Rejected.Format(time.RFC3339Nano))
}

func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrderSample
}

// IsDecline reports whether err is one of the recoverable detector outcomes
// that should be read as "no signal" rather than a failure.
func IsDecline(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrInsufficientOverlap) ||
		errors.Is(err, ErrDegenerateDistribution)
}
