package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	if config.APIURL == "" {
		config.APIURL = "wss://controller.example.com:17070"
	}
	// Each test server gets its own registry so collectors never collide.
	config.MetricsRegistry = prometheus.NewRegistry()
	s, err := New(config)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() {
		s.deployer.Shutdown()
		s.tokens.Close()
	})
	return s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		about  string
		config Config
		want   string
	}{{
		about:  "missing API URL",
		config: Config{APIVersion: "rpc"},
		want:   "missing controller API URL",
	}, {
		about: "invalid API version",
		config: Config{
			APIURL:     "wss://example.com:17070",
			APIVersion: "v99",
		},
		want: `invalid API version "v99"`,
	}, {
		about: "S3 without a region",
		config: Config{
			APIURL:     "wss://example.com:17070",
			APIVersion: "rpc",
			S3Bucket:   "bundles",
		},
		want: "S3 bundle store requires a region",
	}}
	for _, test := range tests {
		err := test.config.Validate()
		if err == nil || err.Error() != test.want {
			t.Errorf("%s: error = %v, want %q", test.about, err, test.want)
		}
	}

	valid := Config{APIURL: "wss://example.com:17070", APIVersion: "legacy"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestConfigFillDefaults(t *testing.T) {
	config := &Config{APIURL: "wss://example.com:17070"}
	config.fillDefaults()
	if config.Address != ":8080" {
		t.Errorf("address = %q", config.Address)
	}
	if config.APIVersion != "rpc" {
		t.Errorf("api version = %q", config.APIVersion)
	}
	if config.ReadBufferSize != 4096 || config.WriteBufferSize != 4096 {
		t.Errorf("buffers = %d, %d",
			config.ReadBufferSize, config.WriteBufferSize)
	}
	if config.AMQPExchange != "stevedore.deployments" {
		t.Errorf("exchange = %q", config.AMQPExchange)
	}
	if config.CheckOrigin == nil {
		t.Error("check origin not defaulted")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(&Config{APIURL: "wss://x", APIVersion: "v99"}); err == nil {
		t.Error("invalid config should be rejected")
	}
}

func TestServerInfo(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/gui-server-info")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info["apiurl"] != "wss://controller.example.com:17070" {
		t.Errorf("apiurl = %v", info["apiurl"])
	}
	if info["apiversion"] != "rpc" {
		t.Errorf("apiversion = %v", info["apiversion"])
	}
	if info["version"] != Version {
		t.Errorf("version = %v", info["version"])
	}
	if info["deployments"] != float64(0) {
		t.Errorf("deployments = %v", info["deployments"])
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStaticFallback(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"index.html": "<html>gui</html>",
		"app.js":     "window.gui = true;",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	s := newTestServer(t, &Config{StaticRoot: root})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status = %d", path, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return string(body)
	}

	if got := get("/app.js"); got != files["app.js"] {
		t.Errorf("/app.js = %q", got)
	}
	// Unknown paths fall back to index.html for client-side routing.
	if got := get("/some/gui/route"); got != files["index.html"] {
		t.Errorf("/some/gui/route = %q", got)
	}
}

func TestHTTPSRedirector(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/gui/some/page?a=1", nil)
	req.Host = "example.com"
	recorder := httptest.NewRecorder()
	HTTPSRedirector().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", recorder.Code)
	}
	want := "https://example.com/gui/some/page?a=1"
	if got := recorder.Header().Get("Location"); got != want {
		t.Errorf("location = %q, want %q", got, want)
	}
}

func TestStaticDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/no-such-page")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
