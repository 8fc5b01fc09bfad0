package classification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"guard_server/core/domain"
)

// chatServer answers /v1/chat/completions with a fixed completion body and
// records the bearer tokens it saw.
type chatServer struct {
	*httptest.Server

	mu     sync.Mutex
	tokens []string
	models []string
}

func newChatServer(t *testing.T, status int, body string) *chatServer {
	t.Helper()
	s := &chatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		s.tokens = append(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		s.models = append(s.models, req.Model)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func completion(content string) string {
	msg, _ := json.Marshal(content)
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":` + string(msg) + `},"finish_reason":"stop"}]}`
}

func TestOpenAIClassifier_ScoresClampedAndMapped(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, completion(`{"scores":{"violence":0.9,"politics":1.4}}`))
	c := NewOpenAIClassifier(OpenAIClassifierConfig{BaseURL: srv.URL + "/v1"})

	labels, err := c.ClassifyWithToken(context.Background(), "some post", "tok-a")
	if err != nil {
		t.Fatalf("ClassifyWithToken() error = %v", err)
	}
	m := labelMap(labels)
	if m[domain.CategoryViolence] != 0.9 {
		t.Errorf("violence = %v, want 0.9", m[domain.CategoryViolence])
	}
	if m[domain.CategoryPolitics] != 1 {
		t.Errorf("politics = %v, want clamped to 1", m[domain.CategoryPolitics])
	}
	if len(srv.models) != 1 || srv.models[0] != DefaultOpenAIModel {
		t.Errorf("models = %v, want [%s]", srv.models, DefaultOpenAIModel)
	}
}

func TestOpenAIClassifier_TransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		token  string
	}{
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`, "tok"},
		{"upstream error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, "tok"},
		{"missing token", http.StatusOK, completion(`{"scores":{}}`), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, tt.status, tt.body)
			c := NewOpenAIClassifier(OpenAIClassifierConfig{BaseURL: srv.URL + "/v1"})

			labels, err := c.ClassifyWithToken(context.Background(), "some post", tt.token)
			if !errors.Is(err, domain.ErrTransportFailure) {
				t.Errorf("err = %v, want ErrTransportFailure", err)
			}
			if labels != nil {
				t.Errorf("labels = %v, want nil", labels)
			}
		})
	}
}

func TestOpenAIClassifier_ContentWithoutScores(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, completion(`{"verdict":"fine"}`))
	c := NewOpenAIClassifier(OpenAIClassifierConfig{BaseURL: srv.URL + "/v1", Model: "custom-model"})

	labels, err := c.ClassifyWithToken(context.Background(), "some post", "tok")
	if err != nil {
		t.Fatalf("ClassifyWithToken() error = %v", err)
	}
	if labels == nil || len(labels) != 0 {
		t.Errorf("labels = %#v, want empty", labels)
	}
	if srv.models[0] != "custom-model" {
		t.Errorf("model = %q", srv.models[0])
	}
}

func TestOpenAIClassifier_ClientPerToken(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, completion(`{"scores":{"hate":0.2}}`))
	c := NewOpenAIClassifier(OpenAIClassifierConfig{BaseURL: srv.URL + "/v1"})
	ctx := context.Background()

	for _, token := range []string{"tok-a", "tok-a", "tok-b"} {
		if _, err := c.ClassifyWithToken(ctx, "some post", token); err != nil {
			t.Fatalf("ClassifyWithToken(%s) error = %v", token, err)
		}
	}

	if n := len(c.clients); n != 2 {
		t.Errorf("clients = %d, want one per token", n)
	}
	want := []string{"tok-a", "tok-a", "tok-b"}
	for i, tok := range srv.tokens {
		if tok != want[i] {
			t.Errorf("request %d token = %q, want %q", i, tok, want[i])
		}
	}
}
