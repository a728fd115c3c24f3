package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/stevedore-dev/stevedore/pkg/bundle"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// fakeController implements the controller side of the rpc API: Login checks
// the password, Status reports the configured deployed services and every
// other call is recorded and acknowledged.
type fakeController struct {
	deployed map[string]any

	mu    sync.Mutex
	calls []string
}

func (f *fakeController) recordedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		request, _ := msg["Request"].(string)
		f.mu.Lock()
		f.calls = append(f.calls, request)
		f.mu.Unlock()

		response := map[string]any{
			"RequestId": msg["RequestId"],
			"Response":  map[string]any{},
		}
		switch request {
		case "Login":
			params, _ := msg["Params"].(map[string]any)
			if params["Password"] != "secret" {
				response["Error"] = "invalid entity name or password"
			}
		case "Status":
			deployed := f.deployed
			if deployed == nil {
				deployed = map[string]any{}
			}
			response["Response"] = map[string]any{"Services": deployed}
		}
		if err := conn.WriteJSON(response); err != nil {
			return
		}
	}
}

func startFakeController(t *testing.T, f *fakeController) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func wikiBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Services: map[string]bundle.Service{
			"wordpress": {Charm: "cs:trusty/wordpress-42", NumUnits: 1},
			"mysql":     {Charm: "cs:trusty/mysql-47", NumUnits: 1},
		},
		Relations: [][]string{{"wordpress:db", "mysql"}},
	}
}

func TestImportBundle(t *testing.T) {
	fake := &fakeController{}
	url := startFakeController(t, fake)

	err := ImportBundle(context.Background(), url, "secret", "wiki", wikiBundle())
	if err != nil {
		t.Fatalf("ImportBundle error: %v", err)
	}

	// Login, collision check, one deploy per service in lexical order, then
	// the relation.
	want := []string{"Login", "Status", "ServiceDeploy", "ServiceDeploy", "AddRelation"}
	calls := fake.recordedCalls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestImportBundleBadPassword(t *testing.T) {
	url := startFakeController(t, &fakeController{})

	err := ImportBundle(context.Background(), url, "wrong", "wiki", wikiBundle())
	if err == nil || !strings.Contains(err.Error(), "invalid entity name or password") {
		t.Errorf("error = %v", err)
	}
}

func TestValidateBundleCollision(t *testing.T) {
	fake := &fakeController{deployed: map[string]any{
		"wordpress": map[string]any{},
		"mysql":     map[string]any{},
		"haproxy":   map[string]any{},
	}}
	url := startFakeController(t, fake)

	err := ValidateBundle(context.Background(), url, "secret", "", wikiBundle())
	if err == nil {
		t.Fatal("expected a collision error")
	}
	// Only the bundle's own services collide, reported in lexical order.
	want := "service(s) already in the environment: mysql, wordpress"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}

func TestValidateBundleCleanEnvironment(t *testing.T) {
	url := startFakeController(t, &fakeController{})

	err := ValidateBundle(context.Background(), url, "secret", "", wikiBundle())
	if err != nil {
		t.Errorf("ValidateBundle error: %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/api")
	if err == nil {
		t.Error("Dial to an unreachable endpoint should fail")
	}
}

func TestHTTPOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wss://controller.example.com:17070/api", "https://controller.example.com:17070"},
		{"ws://10.0.0.1:8001/ws?key=value", "http://10.0.0.1:8001"},
		{"wss://controller.example.com", "https://controller.example.com"},
	}
	for _, test := range tests {
		if got := httpOrigin(test.in); got != test.want {
			t.Errorf("httpOrigin(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
