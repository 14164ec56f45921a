package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("request path = %q, want /api/generate", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("Generate() sent stream=true, want false")
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "The sky is blue.", Done: true})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	got, err := o.Generate(context.Background(), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if got != "The sky is blue." {
		t.Errorf("Generate() = %q, want full response text", got)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	tokens := []string{"The", " sky", " is", " blue."}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("GenerateStream() sent stream=false, want true")
		}
		enc := json.NewEncoder(w)
		for _, tok := range tokens {
			_ = enc.Encode(generateResponse{Response: tok})
		}
		_ = enc.Encode(generateResponse{Done: true})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	var got []string
	err := o.GenerateStream(context.Background(), "Why is the sky blue?", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream() failed: %v", err)
	}
	if len(got) != len(tokens) {
		t.Fatalf("GenerateStream() delivered %d tokens, want %d", len(got), len(tokens))
	}
	for i, want := range tokens {
		if got[i] != want {
			t.Errorf("token %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestOllamaGenerateStreamCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		for i := 0; i < 10; i++ {
			_ = enc.Encode(generateResponse{Response: fmt.Sprintf("tok%d", i)})
		}
		_ = enc.Encode(generateResponse{Done: true})
	}))
	defer srv.Close()

	stop := errors.New("stop")
	o := NewOllama(srv.URL, "llama3.2")

	count := 0
	err := o.GenerateStream(context.Background(), "p", func(tok string) error {
		count++
		if count == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("GenerateStream() = %v, want callback error propagated", err)
	}
	if count != 3 {
		t.Errorf("callback invoked %d times, want 3", count)
	}
}

func TestOllamaGenerateStreamModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(generateResponse{Response: "partial"})
		_ = enc.Encode(generateResponse{Error: "model exploded"})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	err := o.GenerateStream(context.Background(), "p", func(string) error { return nil })
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("GenerateStream() = %v, want ErrGenerationFailed", err)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "missing")
	if _, err := o.Generate(context.Background(), "p"); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Generate() = %v, want ErrGenerationFailed", err)
	}
}
