package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domsvc "MarketPulse/internal/domain/service"
	xhttp "MarketPulse/pkg/http"
)

// ErrNoServiceURL is returned by Generate when no generation endpoint is configured.
var ErrNoServiceURL = errors.New("content service url not configured")

type generateRequest struct {
	Signal  models.Signal `json:"signal"`
	Attempt int           `json:"attempt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// HTTPGenerator asks an external writer service for analysis text. Attempt
// numbers above one tell the service a previous draft was too similar.
type HTTPGenerator struct {
	url    string
	client *xhttp.Client
}

func NewHTTPGenerator(url string, timeout time.Duration, retries int) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		url:    strings.TrimRight(url, "/"),
		client: xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(retries, 200*time.Millisecond)),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, sig models.Signal, attempt int) (string, error) {
	if g.url == "" {
		return "", ErrNoServiceURL
	}
	var resp generateResponse
	if err := g.client.PostJSON(ctx, g.url+"/generate", generateRequest{Signal: sig, Attempt: attempt}, &resp); err != nil {
		return "", fmt.Errorf("generate %s/%s: %w", sig.AssetID, sig.Kind, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

var _ domsvc.ContentGenerator = (*HTTPGenerator)(nil)
