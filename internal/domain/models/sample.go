package models

import (
	"fmt"
	"time"
)

// Sample is one observation of an asset's market state. Samples are values;
// once recorded into a buffer they are never modified.
type Sample struct {
	AssetID   string    `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// Volumes extracts the volume column of samples in order.
func Volumes(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Volume
	}
	return out
}

// Prices extracts the price column of samples in order.
func Prices(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}

// Validate checks the fields a buffer relies on.
func (s Sample) Validate() error {
	switch {
	case s.AssetID == "":
		return fmt.Errorf("%w: asset id empty", ErrInvalidSample)
	case s.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp missing", ErrInvalidSample)
	case s.Price < 0 || s.Volume < 0:
		return fmt.Errorf("%w: negative price/volume", ErrInvalidSample)
	}
	return nil
}

// SampleFrame is the compact wire form used on the samples topic and the
// stream feed. T is unix seconds or milliseconds.
type SampleFrame struct {
	Asset string  `json:"asset"`
	T     int64   `json:"t"`
	P     float64 `json:"p"`
	V     float64 `json:"v"`
}
