package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/glimt/glimt/pkg/compute"
	"github.com/glimt/glimt/pkg/logging"
)

// Loader implements compute.Loader. Loading a model checks that the server
// has it and, when pulling is enabled, downloads it, reporting the pull's
// byte progress.
type Loader struct {
	host       string
	httpClient *http.Client
	pull       bool
	logger     logging.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPull downloads models the server does not have yet.
func WithPull(enabled bool) LoaderOption {
	return func(l *Loader) { l.pull = enabled }
}

// WithHTTPClient replaces the HTTP client used by loaded models.
func WithHTTPClient(hc *http.Client) LoaderOption {
	return func(l *Loader) {
		if hc != nil {
			l.httpClient = hc
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger logging.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader returns a loader for the server at host.
func NewLoader(host string, opts ...LoaderOption) *Loader {
	l := &Loader{
		host:       host,
		httpClient: NewClient(host, "").httpClient,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ compute.Loader = (*Loader)(nil)

// Load returns a client bound to modelID once the server can serve it.
func (l *Loader) Load(ctx context.Context, modelID string, progress func(percent float64)) (compute.Model, error) {
	c := newClient(l.host, modelID, l.httpClient)
	progress(0)

	err := c.Show(ctx, modelID)
	switch {
	case err == nil:
	case errors.Is(err, ErrModelNotFound) && l.pull:
		l.logger.Info("pulling model", "model", modelID)
		if err := l.pullModel(ctx, c, modelID, progress); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	progress(100)
	l.logger.Debug("model available", "model", modelID)
	return c, nil
}

func (l *Loader) pullModel(ctx context.Context, c *Client, modelID string, progress func(float64)) error {
	req, err := c.newRequest(ctx, "/api/pull", modelRequest{Model: modelID, Stream: true})
	if err != nil {
		return err
	}
	// pulls outlive the per-request client timeout
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("ollama pull %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama pull %s: %w", modelID, readStatusError(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	last := ""
	for scanner.Scan() {
		var st pullStatus
		if err := json.Unmarshal(scanner.Bytes(), &st); err != nil {
			return fmt.Errorf("decode pull status: %w", err)
		}
		if st.Error != "" {
			return fmt.Errorf("ollama pull %s: %s", modelID, st.Error)
		}
		if st.Status != last {
			l.logger.Debug("pull status", "model", modelID, "status", st.Status)
			last = st.Status
		}
		if st.Total > 0 {
			// keep below 100 until the server says success
			progress(float64(st.Completed) / float64(st.Total) * 99)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull stream: %w", err)
	}
	if last != "success" {
		return fmt.Errorf("ollama pull %s: stream ended with status %q", modelID, last)
	}
	return nil
}
