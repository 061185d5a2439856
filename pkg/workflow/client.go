// Package workflow starts and checks remote workflow attempts.
package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"petit-cli/pkg/td"
)

const defaultEndpoint = "https://api-workflow.treasuredata.com"

// ResolveEndpoint normalizes the workflow API endpoint. Bare hosts get
// https; the default is the platform's main workflow host.
func ResolveEndpoint(endpoint string) string {
	if endpoint == "" {
		return defaultEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}

// Attempt is one workflow execution.
type Attempt struct {
	ID              string `json:"id"`
	Done            bool   `json:"done"`
	Success         bool   `json:"success"`
	CancelRequested bool   `json:"cancelRequested"`
}

// State renders the attempt for logs and the final report.
func (a Attempt) State() string {
	switch {
	case !a.Done:
		return "running"
	case a.Success:
		return "succeeded"
	case a.CancelRequested:
		return "canceled"
	default:
		return "failed"
	}
}

type Client struct {
	client       *td.Client
	pollInterval time.Duration
}

func NewClient(client *td.Client) *Client {
	return &Client{client: client, pollInterval: 5 * time.Second}
}

// StartAttempt kicks off a new attempt of the workflow. The session time
// makes the attempt unique.
func (c *Client) StartAttempt(ctx context.Context, workflowID string) (*Attempt, error) {
	body, err := json.Marshal(map[string]any{
		"workflowId":  workflowID,
		"sessionTime": time.Now().UTC().Format(time.RFC3339),
		"params":      map[string]any{},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attempt request")
	}

	status, respBody, err := c.client.Put("/api/attempts", body, "application/json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to start workflow attempt")
	}
	if status != fasthttp.StatusOK {
		return nil, errors.Errorf("failed to start workflow %s: status %d: %s", workflowID, status, respBody)
	}

	var attempt Attempt
	if err := json.Unmarshal(respBody, &attempt); err != nil {
		return nil, errors.Wrap(err, "failed to decode attempt")
	}
	log.Info().Str("workflow_id", workflowID).Str("attempt_id", attempt.ID).Msg("Started workflow attempt")
	return &attempt, nil
}

// Attempt fetches the current state of one attempt.
func (c *Client) Attempt(ctx context.Context, attemptID string) (*Attempt, error) {
	status, body, err := c.client.Get("/api/attempts/" + attemptID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get attempt %s", attemptID)
	}
	if status != fasthttp.StatusOK {
		return nil, errors.Errorf("failed to get attempt %s: status %d: %s", attemptID, status, body)
	}
	var attempt Attempt
	if err := json.Unmarshal(body, &attempt); err != nil {
		return nil, errors.Wrap(err, "failed to decode attempt")
	}
	return &attempt, nil
}

// WaitAttempt polls the attempt until it finishes or the context ends.
func (c *Client) WaitAttempt(ctx context.Context, attemptID string) (*Attempt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		attempt, err := c.Attempt(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		if attempt.Done {
			return attempt, nil
		}

		log.Debug().Str("attempt_id", attemptID).Msg("Waiting for workflow attempt")

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
