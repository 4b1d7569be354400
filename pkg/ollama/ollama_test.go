package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type fakeServer struct {
	mu        sync.Mutex
	installed map[string]bool
	pulls     int
	embeds    []embedRequest
}

func newFakeServer(t *testing.T, installed ...string) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{installed: make(map[string]bool)}
	for _, m := range installed {
		fs.installed[m] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.embeds = append(fs.embeds, req)
		ok := fs.installed[req.Model]
		fs.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":"model %q not found"}`, req.Model)
			return
		}
		if req.Input == "empty" {
			json.NewEncoder(w).Encode(embedResponse{})
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{float32(len(req.Input)), 0.5}}})
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		var req modelRequest
		json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		ok := fs.installed[req.Model]
		fs.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":"model '%s' not found"}`, req.Model)
			return
		}
		fmt.Fprint(w, `{"details":{"family":"nomic-bert"}}`)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req modelRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "bogus" {
			fmt.Fprintln(w, `{"status":"pulling manifest"}`)
			fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
			return
		}
		for _, line := range []string{
			`{"status":"pulling manifest"}`,
			`{"status":"pulling abc","digest":"sha256:abc","total":200,"completed":50}`,
			`{"status":"pulling abc","digest":"sha256:abc","total":200,"completed":200}`,
			`{"status":"verifying sha256 digest"}`,
			`{"status":"success"}`,
		} {
			fmt.Fprintln(w, line)
		}
		fs.mu.Lock()
		fs.pulls++
		fs.installed[req.Model] = true
		fs.mu.Unlock()
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) pullCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.pulls
}

func (fs *fakeServer) embedRequests() []embedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]embedRequest(nil), fs.embeds...)
}

func TestClientEmbed(t *testing.T) {
	fs, srv := newFakeServer(t, "nomic-embed-text")
	c := NewClient(srv.URL+"/", "nomic-embed-text")

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 5 || vec[1] != 0.5 {
		t.Errorf("Embed() = %v", vec)
	}
	reqs := fs.embedRequests()
	if len(reqs) != 1 || reqs[0].Model != "nomic-embed-text" || reqs[0].Input != "hello" {
		t.Errorf("request = %+v", reqs)
	}
}

func TestClientEmbedErrors(t *testing.T) {
	_, srv := newFakeServer(t, "m")

	if _, err := NewClient(srv.URL, "m").Embed(context.Background(), "empty"); err == nil {
		t.Error("expected error for empty embeddings")
	}
	if _, err := NewClient(srv.URL, "missing").Embed(context.Background(), "x"); err == nil {
		t.Error("expected error for unknown model")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(srv.URL, "m").Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Embed() error = %v", err)
	}
}

func TestClientShowAndHealth(t *testing.T) {
	_, srv := newFakeServer(t, "m")
	c := NewClient(srv.URL, "m")
	ctx := context.Background()

	if err := c.Show(ctx, "m"); err != nil {
		t.Errorf("Show(m) error = %v", err)
	}
	if err := c.Show(ctx, "other"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Show(other) error = %v, want ErrModelNotFound", err)
	}
	if !c.IsHealthy(ctx) {
		t.Error("IsHealthy() = false")
	}

	srv.Close()
	if c.IsHealthy(ctx) {
		t.Error("IsHealthy() = true after server closed")
	}
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func TestLoaderInstalledModel(t *testing.T) {
	_, srv := newFakeServer(t, "m")
	var p progressLog

	model, err := NewLoader(srv.URL).Load(context.Background(), "m", p.record)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer model.Close()

	if len(p.values) != 2 || p.values[0] != 0 || p.values[1] != 100 {
		t.Errorf("progress = %v, want [0 100]", p.values)
	}
	if _, err := model.Embed(context.Background(), "abc"); err != nil {
		t.Errorf("loaded model Embed() error = %v", err)
	}
}

func TestLoaderMissingModel(t *testing.T) {
	fs, srv := newFakeServer(t)

	_, err := NewLoader(srv.URL).Load(context.Background(), "m", func(float64) {})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("Load() error = %v, want ErrModelNotFound", err)
	}
	if n := fs.pullCount(); n != 0 {
		t.Errorf("pulled %d times without WithPull", n)
	}
}

func TestLoaderPullsMissingModel(t *testing.T) {
	fs, srv := newFakeServer(t)
	var p progressLog

	model, err := NewLoader(srv.URL, WithPull(true)).Load(context.Background(), "m", p.record)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer model.Close()

	if n := fs.pullCount(); n != 1 {
		t.Errorf("pulls = %d, want 1", n)
	}
	for i := 1; i < len(p.values); i++ {
		if p.values[i] < p.values[i-1] {
			t.Errorf("progress went backwards: %v", p.values)
		}
	}
	if last := p.values[len(p.values)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
	if _, err := model.Embed(context.Background(), "x"); err != nil {
		t.Errorf("Embed() after pull error = %v", err)
	}
}

func TestLoaderPullError(t *testing.T) {
	_, srv := newFakeServer(t)

	_, err := NewLoader(srv.URL, WithPull(true)).Load(context.Background(), "bogus", func(float64) {})
	if err == nil {
		t.Fatal("expected pull error")
	}
}
