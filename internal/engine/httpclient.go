package engine

import (
	"net/http"
	"time"
)

// User-Agent strings used across HTTP clients.
const (
	UserAgentBot = "GoAutoApply/1.0"
)

// NewHTTPClient returns the shared pooled HTTP client used for feed
// ingestion, the embeddings service, and the submission relay.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
}
