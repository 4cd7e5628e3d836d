package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"auditflow/backend/internal/validation/domain"
)

// ResultSink receives the progress and outcome of dispatched jobs.
type ResultSink interface {
	Started(ctx context.Context, submissionID string, seq int64, attempt int)
	Ingest(ctx context.Context, r domain.Result) (*IngestOutcome, error)
	Fail(ctx context.Context, submissionID string, seq int64, cause error)
}

// HTTPConfig tunes the HTTP validator client.
type HTTPConfig struct {
	// MaxConcurrentJobs bounds validator calls in flight.
	MaxConcurrentJobs int
	MaxRetries        int
	Timeout           time.Duration
	RetryBaseDelay    time.Duration
}

// HTTPDispatcher calls a validator over HTTP from a bounded worker pool, retrying failed
// attempts with exponential backoff.
type HTTPDispatcher struct {
	url         string
	client      *http.Client
	sink        ResultSink
	cfg         HTTPConfig
	workerSlots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHTTPDispatcher returns a dispatcher posting jobs to baseURL + "/validate".
func NewHTTPDispatcher(baseURL string, sink ResultSink, cfg HTTPConfig) *HTTPDispatcher {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPDispatcher{
		url:         strings.TrimSuffix(baseURL, "/") + "/validate",
		client:      &http.Client{},
		sink:        sink,
		cfg:         cfg,
		workerSlots: make(chan struct{}, cfg.MaxConcurrentJobs),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Dispatch starts the job in the background and returns immediately.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) error {
	if d.ctx.Err() != nil {
		return fmt.Errorf("validation: dispatcher closed")
	}
	d.wg.Add(1)
	go d.runJob(req)
	return nil
}

// Close stops retrying and waits for running attempts to return, or for ctx.
func (d *HTTPDispatcher) Close(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *HTTPDispatcher) runJob(req Request) {
	defer d.wg.Done()
	select {
	case d.workerSlots <- struct{}{}:
	case <-d.ctx.Done():
		return
	}
	defer func() { <-d.workerSlots }()

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		d.sink.Started(d.ctx, req.SubmissionID, req.JobSeq, attempt)
		res, err := d.call(req)
		if err == nil {
			if _, err := d.sink.Ingest(d.ctx, *res); err != nil {
				log.Printf("validation: ingest result for %s seq %d: %v", req.SubmissionID, req.JobSeq, err)
			}
			return
		}
		lastErr = err
		if d.ctx.Err() != nil {
			return
		}
		if attempt == d.cfg.MaxRetries {
			break
		}
		backoff := d.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
	}
	d.sink.Fail(d.ctx, req.SubmissionID, req.JobSeq, lastErr)
}

func (d *HTTPDispatcher) call(req Request) (*domain.Result, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("validator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var res domain.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode validator response: %w", err)
	}
	res.SubmissionID, res.JobSeq = req.SubmissionID, req.JobSeq
	return &res, nil
}
