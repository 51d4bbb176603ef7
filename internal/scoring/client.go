// Package scoring calls the external relevance-scoring service that
// produces the GO / NO-GO opinion for a detection. Scoring is best-effort:
// matching, deduplication and persistence never depend on it.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"tenderwatch/alert-service/internal/model"
)

// Decision is the scoring verdict.
type Decision string

const (
	DecisionGo       Decision = "GO"
	DecisionNoGo     Decision = "NO_GO"
	DecisionToReview Decision = "TO_REVIEW"
)

// Opinion is the structured result returned by the scoring service.
type Opinion struct {
	Decision        Decision `json:"decision"`
	Confidence      int      `json:"confidence"` // 0-100
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
	Risks           []string `json:"risks"`
}

// Scorer is the contract the rest of the engine consumes.
type Scorer interface {
	Score(ctx context.Context, d model.Detection) (*Opinion, error)
}

// Client is the HTTP Scorer. If BaseURL is empty, Score returns (nil, nil)
// gracefully — the caller simply has no opinion to store.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient constructs a Client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Reference   string   `json:"reference,omitempty"`
	Title       string   `json:"title"`
	Client      string   `json:"client"`
	Amount      *float64 `json:"amount,omitempty"`
	Location    string   `json:"location,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	ServiceType string   `json:"serviceType,omitempty"`
}

// Score submits the detection's listing fields and decodes the opinion.
// Returns nil without error when no scoring service is configured.
func (c *Client) Score(ctx context.Context, d model.Detection) (*Opinion, error) {
	if c.BaseURL == "" {
		log.Println("[scoring] SCORING_API_URL not set — skipping relevance scoring")
		return nil, nil
	}

	payload := scoreRequest{
		Reference:   d.Reference,
		Title:       d.Title,
		Client:      d.Client,
		Amount:      d.Amount,
		Location:    d.Location,
		ServiceType: string(d.ServiceType),
	}
	if d.Deadline != nil {
		payload.Deadline = d.Deadline.Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, string(raw))
	}

	var op Opinion
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	switch op.Decision {
	case DecisionGo, DecisionNoGo, DecisionToReview:
	default:
		return nil, fmt.Errorf("unknown scoring decision %q", op.Decision)
	}
	return &op, nil
}
