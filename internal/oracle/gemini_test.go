package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(srv *httptest.Server) *geminiClient {
	return &geminiClient{
		apiKey: "test-key",
		model:  "gemini-2.5-flash",
		base:   srv.URL,
		http:   srv.Client(),
		logger: zerolog.Nop(),
	}
}

func candidateJSON(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]},"finishReason":"STOP"}]}`
}

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(candidateJSON("hello")))
	}))
	defer srv.Close()

	resp, err := testClient(srv).Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestGenerateRetriesOn500(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"transient","status":"INTERNAL"}}`))
			return
		}
		w.Write([]byte(candidateJSON("recovered")))
	}))
	defer srv.Close()

	resp, err := testClient(srv).Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("text = %q", resp.Text)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGenerateNoRetryOn400(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bad request") {
		t.Errorf("error should carry api message: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retries on 400", calls)
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	c := &geminiClient{logger: zerolog.Nop()}
	if _, err := c.Generate(context.Background(), Request{Prompt: "  "}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestGenerateHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := testClient(srv).Generate(ctx, Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
}
