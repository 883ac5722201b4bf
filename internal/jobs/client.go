package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bricksync/internal/metrics"
)

const maxResultSize = 8 * 1024 * 1024 // 8MB terminal payload cap

// Client drives one asynchronous job to completion: submit, poll with capped
// exponential backoff, resolve. Per job the flow is
//
//	Idle -> Submitting -> Polling -> {Done, Failed, Cancelled}
//
// Queueing on failure is the caller's policy, not the Client's; see Runner.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	guard      *flightGuard
}

// NewClient creates a job client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("jobclient"),
		guard:      newFlightGuard(),
	}, nil
}

// Run submits body as a job of the given kind and polls it to a terminal
// state. target scopes the single-flight guard: a second Run with the same
// kind and target while the first is still polling fails fast with
// ErrConcurrentJob.
func (c *Client) Run(ctx context.Context, kind Kind, target string, body []byte) ([]byte, error) {
	if !c.guard.acquire(kind, target) {
		return nil, ErrConcurrentJob
	}
	defer c.guard.release(kind, target)

	jobID, err := c.Submit(ctx, kind, body)
	if err != nil {
		return nil, err
	}
	return c.Await(ctx, kind, jobID)
}

// Submit posts the job and returns the backend's job handle. The handle is
// only valid for the lifetime of the job and is never persisted: if the
// process dies mid-poll, the request is recovered from cache or the pending
// queue, not from the handle.
func (c *Client) Submit(ctx context.Context, kind Kind, body []byte) (string, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	url := c.cfg.BaseURL + kind.Path()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("jobclient: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Only the caller's context marks cancellation; the per-request
		// timeout wraps DeadlineExceeded too, but a hung backend is a
		// delivery failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("job submit rejected",
			zap.String("kind", string(kind)),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return "", &TransportError{Op: "submit", Status: resp.StatusCode}
	}

	var accepted acceptedResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", &TransportError{Op: "submit", Err: fmt.Errorf("decode acceptance: %w", err)}
	}
	if accepted.JobID == "" {
		return "", &TransportError{Op: "submit", Err: fmt.Errorf("acceptance without job_id")}
	}

	c.logger.Debug("job submitted",
		zap.String("kind", string(kind)),
		zap.String("job_id", accepted.JobID),
		zap.Duration("duration", time.Since(start)),
	)

	return accepted.JobID, nil
}

// Await polls the job until it resolves. Each poll has three outcomes:
// 200 = done (returns the payload), 202 = still pending (keep polling),
// anything else = terminal failure. The delay starts at PollBase, doubles
// after every pending response and is capped at PollMax; it resets for every
// new job because every job gets a fresh Await.
func (c *Client) Await(ctx context.Context, kind Kind, jobID string) ([]byte, error) {
	delay := c.cfg.PollBase
	url := c.cfg.BaseURL + kind.Path() + "/" + jobID

	for {
		// Cancellation is cooperative: checked before every poll.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, payload, err := c.pollOnce(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransportError{Op: "poll", Err: err}
		}
		metrics.JobPollsTotal.WithLabelValues(string(kind)).Inc()

		switch status {
		case http.StatusOK:
			c.logger.Debug("job done",
				zap.String("kind", string(kind)),
				zap.String("job_id", jobID),
			)
			return payload, nil

		case http.StatusAccepted:
			c.logger.Debug("job pending",
				zap.String("kind", string(kind)),
				zap.String("job_id", jobID),
				zap.Duration("next_poll_in", delay),
			)
			if err := c.cfg.Sleeper.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.cfg.PollMax {
				delay = c.cfg.PollMax
			}

		default:
			c.logger.Warn("job failed",
				zap.String("kind", string(kind)),
				zap.String("job_id", jobID),
				zap.Int("status", status),
			)
			return nil, &JobFailedError{Kind: kind, JobID: jobID, Status: status}
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, url string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
