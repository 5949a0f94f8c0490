package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/config"
	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

func results(texts ...string) []domain.SearchResult {
	out := make([]domain.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = domain.SearchResult{Chunk: domain.Chunk{Text: t, Position: i}, Score: 1 - float64(i)/10}
	}
	return out
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Why are loans denied?", results("first row.", "second row."))
	assert.True(t, strings.HasPrefix(p, "Context:\n1. first row.\n\n2. second row.\n\n"))
	assert.Contains(t, p, "Question: Why are loans denied?")
	assert.Contains(t, p, "please say so")
	assert.True(t, strings.HasSuffix(p, "Answer:"))
}

func TestDemoKeywordOrder(t *testing.T) {
	ctx := results("x")
	d := Demo{}
	cases := map[string]string{
		"What factors affect loan approval?":             "📊",
		"Why are loans denied?":                          "❌",
		"How does income affect loan decisions?":         "💰",
		"Do self-employed applicants get approved less?": "🏢",
		"How does credit history impact approval?":       "📊",
		"How does CREDIT history matter?":                "📈",
		"What about urban areas?":                        "🏙️",
	}
	for q, marker := range cases {
		got := d.Respond(q, ctx)
		assert.Contains(t, got, marker, q)
		assert.True(t, strings.HasPrefix(got, demoBanner), q)
		assert.True(t, strings.HasSuffix(got, demoNote), q)
	}
}

func TestDemoDefaultAndEmpty(t *testing.T) {
	d := Demo{}
	got := d.Respond("Tell me something", results("a", "b", "c"))
	assert.Contains(t, got, "Based on the 3 most relevant data points")
	assert.Equal(t, NoContextAnswer, d.Respond("approval?", nil))
}

type stubCompleter struct {
	text string
	err  error
	n    int
}

func (s *stubCompleter) Complete(context.Context, string, string, string) (string, error) {
	s.n++
	return s.text, s.err
}

func TestGenerateModes(t *testing.T) {
	stub := &stubCompleter{text: "Live answer."}
	g := &Generator{client: stub, log: New(config.GeneratorConfig{}, nil).log}
	ctx := context.Background()

	a := g.Generate(ctx, Credentials{}, "approval?", results("x"))
	assert.Equal(t, domain.ModeDemo, a.Mode)
	assert.Zero(t, stub.n)

	a = g.Generate(ctx, Credentials{APIKey: "k", Demo: true}, "approval?", results("x"))
	assert.Equal(t, domain.ModeDemo, a.Mode)
	assert.Zero(t, stub.n)

	a = g.Generate(ctx, Credentials{APIKey: "k"}, "approval?", results("x"))
	assert.Equal(t, domain.ModeLive, a.Mode)
	assert.Equal(t, "Live answer.", a.Text)
	assert.Empty(t, a.Notice)
	assert.Equal(t, 1, stub.n)
}

func TestGenerateFallsBackOnFailure(t *testing.T) {
	stub := &stubCompleter{err: errs.ErrAuthentication.Wrapf("401")}
	g := &Generator{client: stub, log: New(config.GeneratorConfig{}, nil).log}
	a := g.Generate(context.Background(), Credentials{APIKey: "bad"}, "Why are loans denied?", results("x"))
	assert.Equal(t, domain.ModeDemo, a.Mode)
	assert.Contains(t, a.Text, "❌")
	assert.Contains(t, a.Notice, "API key was rejected")
	assert.Equal(t, 1, stub.n)

	stub.err, stub.text = nil, "   "
	a = g.Generate(context.Background(), Credentials{APIKey: "k"}, "q", results("x"))
	assert.Equal(t, domain.ModeDemo, a.Mode)
	assert.NotEmpty(t, a.Notice)
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3-8b-8192", req.Model)
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		_ = json.NewEncoder(w).Encode(ChatCompletion{Choices: []Choice{{Message: Message{Role: "assistant", Content: "Credit history matters."}}}})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/openai/v1/", Model: "llama3-8b-8192", Temperature: 0.3, MaxTokens: 1000})
	out, err := c.Complete(context.Background(), "gsk", SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Credit history matters.", out)
}

func TestClientErrorMapping(t *testing.T) {
	var status int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(atomic.LoadInt32(&status))
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	c := NewClient(ClientConfig{BaseURL: srv.URL})

	for code, want := range map[int32]*errs.Error{
		http.StatusUnauthorized:        errs.ErrAuthentication,
		http.StatusForbidden:           errs.ErrAuthentication,
		http.StatusTooManyRequests:     errs.ErrUpstream,
		http.StatusInternalServerError: errs.ErrUpstream,
		http.StatusOK:                  errs.ErrUpstream,
	} {
		atomic.StoreInt32(&status, code)
		_, err := c.Complete(context.Background(), "k", "s", "p")
		assert.True(t, errors.Is(err, want), "status %d: %v", code, err)
	}

	srv.Close()
	_, err := c.Complete(context.Background(), "k", "s", "p")
	assert.True(t, errors.Is(err, errs.ErrNetwork))
}
