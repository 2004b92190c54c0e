package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/prix/pkg/logger"
)

// HTTPClient wraps http.Client with JSON helpers.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Do sends a request with an optional JSON body and returns the status code
// and the raw response body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// GetJSON decodes a 200 response into v.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, status, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, v)
}

// fanOut runs fn over items with a fixed number of workers and counts the
// outcome strings fn returns.
func fanOut[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) string) map[string]int64 {
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		counts = make(map[string]int64)
		wg     sync.WaitGroup
	)
	ch := make(chan T, workers*WorkerChannelMultiplier)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range ch {
				if ctx.Err() != nil {
					continue
				}
				outcome := fn(ctx, item)
				mu.Lock()
				counts[outcome]++
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case ch <- item:
			}
		}
	}()

	wg.Wait()
	return counts
}

// registerPlayers registers every player. A conflict counts as registered so
// runs against a warm service still work.
func registerPlayers(ctx context.Context, config *Config, client *HTTPClient, players []Player, stats *Stats) error {
	logger.Get().Info(ctx, "registering players", logger.Int("count", len(players)), logger.Int("workers", config.Workers))

	counts := fanOut(ctx, config.Workers, players, func(ctx context.Context, p Player) string {
		status, _, err := client.Do(ctx, http.MethodPost, "/players", p)
		if err != nil {
			return resultFailed
		}
		switch status {
		case http.StatusCreated, http.StatusConflict:
			return resultAccepted
		default:
			return resultFailed
		}
	})

	stats.PlayersRegistered = int(counts[resultAccepted])
	if failed := counts[resultFailed]; failed > 0 {
		return fmt.Errorf("%d of %d player registrations failed", failed, len(players))
	}
	return ctx.Err()
}

// submitPrix submits prix concurrently and tallies the acknowledgements.
func submitPrix(ctx context.Context, config *Config, client *HTTPClient, prix []Prix, stats *Stats) error {
	logger.Get().Info(ctx, "submitting prix", logger.Int("count", len(prix)), logger.Int("workers", config.Workers))

	var submitted atomic.Int64
	stop := make(chan struct{})
	defer close(stop)
	go reportProgress(ctx, stop, &submitted, len(prix))

	counts := fanOut(ctx, config.Workers, prix, func(ctx context.Context, p Prix) string {
		defer submitted.Add(1)
		outcome := submitSinglePrix(ctx, client, p)
		if outcome == resultFailed && config.Verbose {
			logger.Get().Warn(ctx, "prix submission failed", logger.String("prix_id", p.ID))
		}
		return outcome
	})

	stats.PrixSubmitted = int(submitted.Load())
	stats.PrixAccepted = int(counts[resultAccepted])
	stats.PrixDuplicate = int(counts[resultDuplicate])
	stats.PrixFailed = int(counts[resultFailed])

	logger.Get().Info(ctx, "prix submission completed",
		logger.Int("accepted", stats.PrixAccepted),
		logger.Int("duplicate", stats.PrixDuplicate),
		logger.Int("failed", stats.PrixFailed))
	return ctx.Err()
}

// submitSinglePrix submits one prix and classifies the response.
func submitSinglePrix(ctx context.Context, client *HTTPClient, p Prix) string {
	status, body, err := client.Do(ctx, http.MethodPost, "/prix", p)
	if err != nil {
		return resultFailed
	}

	var ack AckResponse
	switch status {
	case http.StatusAccepted:
		return resultAccepted
	case http.StatusOK:
		if json.Unmarshal(body, &ack) == nil && !ack.Duplicate {
			return resultAccepted
		}
		return resultDuplicate
	default:
		return resultFailed
	}
}

func reportProgress(ctx context.Context, stop <-chan struct{}, done *atomic.Int64, total int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			logger.Get().Info(ctx, "submission progress", logger.Int64("submitted", done.Load()), logger.Int("total", total))
		}
	}
}
