// Package main implements a mock OpenRouter server for offline runs and
// wiring tests. It serves /api/v1/chat/completions responses from JSON
// fixture files, routing by the "model" field in the request, and a static
// /api/v1/models catalog. This eliminates the need for a real upstream when
// exercising the full council pipeline: fast, deterministic, and free.
//
// Usage:
//
//	mock-openrouter -fixtures /path/to/fixtures -port 8080
//
// Fixture files are text named by model with "/" replaced by "__" (e.g.
// "openai__gpt-oss-20b:free.txt"). The file content is returned as the
// assistant message.
//
// Sequential fixtures: if numbered files exist (e.g. "model.1.txt",
// "model.2.txt"), the Nth call to that model returns the Nth fixture, then
// the last one repeats. The council calls every member twice per run
// (answer, then ranking), so two fixtures per model script a full run.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenRouter-compatible types ---

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"` // content may be string or parts array
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

type server struct {
	fixtures map[string][]string // model name → ordered fixture contents
	calls    atomic.Int64

	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures:   fixtures,
		modelCalls: make(map[string]*atomic.Int64),
	}
}

func (s *server) counter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 8080, "port to listen on")
	flag.Parse()

	if envDir := os.Getenv("MOCK_OPENROUTER_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d model(s) from %s", len(fixtures), *fixtureDir)

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/api/v1/models", s.handleModels)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock OpenRouter listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))

	seq, ok := s.fixtures[req.Model]
	if !ok {
		log.Printf("[call %d] no fixture for model=%q", callNum, req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	callIndex := int(s.counter(req.Model).Add(1) - 1)
	content := seq[len(seq)-1]
	if callIndex < len(seq) {
		content = seq[callIndex]
	}

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(req.Messages) * 10,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(req.Messages)*10 + len(content)/4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleModels returns every fixture model as a free catalog entry.
func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models := make([]string, 0, len(s.fixtures))
	for model := range s.fixtures {
		models = append(models, model)
	}
	sort.Strings(models)

	type entry struct {
		ID            string            `json:"id"`
		Name          string            `json:"name"`
		ContextLength int               `json:"context_length"`
		Pricing       map[string]string `json:"pricing"`
	}
	data := make([]entry, 0, len(models))
	for _, model := range models {
		data = append(data, entry{
			ID:            model,
			Name:          model,
			ContextLength: 32768,
			Pricing:       map[string]string{"prompt": "0", "completion": "0"},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// --- Fixture loading ---

// seqPattern matches numbered fixture files: "name.N.txt".
var seqPattern = regexp.MustCompile(`^(.+)\.(\d+)\.txt$`)

// loadFixtures reads the fixture directory. "__" in a file name maps back
// to "/" in the model id.
func loadFixtures(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n       int
		content string
	}
	sequences := make(map[string][]numbered)
	plain := make(map[string]string)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", e.Name(), err)
		}
		content := string(data)

		if m := seqPattern.FindStringSubmatch(e.Name()); m != nil {
			model := strings.ReplaceAll(m[1], "__", "/")
			n, _ := strconv.Atoi(m[2])
			sequences[model] = append(sequences[model], numbered{n: n, content: content})
			continue
		}
		model := strings.ReplaceAll(strings.TrimSuffix(e.Name(), ".txt"), "__", "/")
		plain[model] = content
	}

	fixtures := make(map[string][]string)
	for model, seq := range sequences {
		sort.Slice(seq, func(i, j int) bool { return seq[i].n < seq[j].n })
		for _, item := range seq {
			fixtures[model] = append(fixtures[model], item.content)
		}
	}
	for model, content := range plain {
		// A plain fixture follows any numbered ones as the repeating tail.
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no .txt fixtures found in %s", dir)
	}
	return fixtures, nil
}
