package models

// Requests for engine HTTP endpoints. Defined in domain for consistency and reuse.

type IngestSampleRequest struct {
	Asset     string  `json:"asset" validate:"required"`
	Timestamp string  `json:"timestamp" validate:"required"`
	Price     float64 `json:"price" validate:"gt=0"`
	Volume    float64 `json:"volume" validate:"gte=0"`
}

type WindowRequest struct {
	Asset string `param:"asset" validate:"required"`
	N     int    `query:"n" json:"n" default:"48" validate:"gte=1,lte=5000"`
}

type CooldownRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
}

type ContentCheckRequest struct {
	Text   string   `json:"text" validate:"required"`
	Assets []string `json:"assets"`
}

type AssetStatus struct {
	Asset  string `json:"asset"`
	Length int    `json:"length"`
	Ready  bool   `json:"ready"`
}
