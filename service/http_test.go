package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmcouncil/council/council"
	"github.com/llmcouncil/council/gateway"
	"github.com/llmcouncil/council/storage"
	"github.com/llmcouncil/council/vision"
)

// stubRunner scripts engine behavior for handler tests.
type stubRunner struct {
	result   *council.CouncilResult
	err      error
	events   []council.Event
	lastReq  council.Request
	runCalls int
}

func (s *stubRunner) RunFullCouncil(_ context.Context, req council.Request) (*council.CouncilResult, error) {
	s.lastReq = req
	s.runCalls++
	return s.result, s.err
}

func (s *stubRunner) RunStream(_ context.Context, req council.Request) <-chan council.Event {
	s.lastReq = req
	ch := make(chan council.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (s *stubRunner) GenerateTitle(context.Context, string, string) string {
	return council.DefaultTitle
}

type stubExtractor struct {
	vc      *vision.Context
	err     error
	lastKey string
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ string, apiKey, _ string) (*vision.Context, error) {
	s.lastKey = apiKey
	return s.vc, s.err
}

type stubCatalog struct {
	models []gateway.ModelDescriptor
	err    error
}

func (s *stubCatalog) FreeModels(context.Context) ([]gateway.ModelDescriptor, error) {
	return s.models, s.err
}

type fixture struct {
	runner    *stubRunner
	extractor *stubExtractor
	catalog   *stubCatalog
	store     *storage.MemoryStore
	mux       *http.ServeMux
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		runner: &stubRunner{
			result: &council.CouncilResult{
				Stage3:   council.Stage3Result{Model: "chair", Content: "final"},
				Metadata: council.Metadata{Title: "A Title"},
			},
		},
		extractor: &stubExtractor{vc: &vision.Context{ExtractedText: "image text", Confidence: 0.9}},
		catalog:   &stubCatalog{},
		store:     storage.NewMemoryStore(),
	}
	component := NewComponent(f.runner, f.extractor, f.catalog, f.store, opts...)
	f.mux = http.NewServeMux()
	component.RegisterHTTPHandlers("api", f.mux)
	return f
}

func (f *fixture) do(method, path, key string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set("X-OpenRouter-Key", key)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var ae apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ae))
	return ae
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestFreeModels(t *testing.T) {
	f := newFixture()
	f.catalog.models = []gateway.ModelDescriptor{{ID: "a/one:free", Name: "One"}}

	rec := f.do(http.MethodGet, "/api/models/free", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var models []gateway.ModelDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Len(t, models, 1)
	assert.Equal(t, "a/one:free", models[0].ID)
}

func TestFreeModelsUpstreamFailure(t *testing.T) {
	f := newFixture()
	f.catalog.err = errors.New("catalog down")

	rec := f.do(http.MethodGet, "/api/models/free", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, council.KindProviderError, decodeError(t, rec).ErrorCode)
}

func TestMessageRequiresKey(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/conversations/c1/message", "", MessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, council.KindMissingAPIKey, decodeError(t, rec).ErrorCode)
	assert.Zero(t, f.runner.runCalls)
}

func TestMessageDefaultKeyFallback(t *testing.T) {
	f := newFixture(WithDefaultAPIKey("sk-server"))

	conv, err := f.store.CreateConversation(context.Background())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/message", "", MessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-server", f.runner.lastReq.APIKey)
}

func TestMessageHappyPathPersists(t *testing.T) {
	f := newFixture()

	conv, err := f.store.CreateConversation(context.Background())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/message", "sk-user", MessageRequest{
		Content:        "what is Go?",
		CouncilMembers: []string{"a/one", "b/two"},
		ChairmanModel:  "c/chair",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result council.CouncilResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "final", result.Stage3.Content)

	assert.Equal(t, "what is Go?", f.runner.lastReq.Prompt)
	assert.Equal(t, []string{"a/one", "b/two"}, f.runner.lastReq.Members)
	assert.Equal(t, "c/chair", f.runner.lastReq.Chairman)
	assert.Equal(t, "sk-user", f.runner.lastReq.APIKey)

	stored, err := f.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, storage.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, storage.RoleAssistant, stored.Messages[1].Role)
	assert.Equal(t, "A Title", stored.Title)
}

func TestMessageEmptyBodyRejected(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/conversations/c1/message", "sk", MessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, council.KindInvalidRequest, decodeError(t, rec).ErrorCode)
}

func TestMessageEngineErrorMapping(t *testing.T) {
	tests := []struct {
		kind   council.Kind
		status int
	}{
		{council.KindNoQuorum, http.StatusBadGateway},
		{council.KindInvalidAPIKey, http.StatusUnauthorized},
		{council.KindProviderError, http.StatusBadGateway},
		{council.KindTimeout, http.StatusGatewayTimeout},
		{council.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f := newFixture()
		f.runner.result = nil
		f.runner.err = council.NewError(tt.kind, "boom", nil)

		rec := f.do(http.MethodPost, "/api/conversations/c1/message", "sk", MessageRequest{Content: "hi"})
		assert.Equal(t, tt.status, rec.Code, "kind %s", tt.kind)
		assert.Equal(t, tt.kind, decodeError(t, rec).ErrorCode)
	}
}

func TestMessageWithImage(t *testing.T) {
	f := newFixture()
	conv, err := f.store.CreateConversation(context.Background())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/message", "sk", MessageRequest{
		Content:       "what does this say?",
		ImageBase64:   base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		ImageMimeType: "image/png",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The prompt handed to the engine is the rendered vision template.
	assert.Contains(t, f.runner.lastReq.Prompt, "## Image Context")
	assert.Contains(t, f.runner.lastReq.Prompt, "image text")
	assert.Contains(t, f.runner.lastReq.Prompt, "what does this say?")
	assert.Equal(t, "sk", f.extractor.lastKey)
}

func TestMessageImageInvalidBase64(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/conversations/c1/message", "sk", MessageRequest{
		ImageBase64:   "!!!not-base64!!!",
		ImageMimeType: "image/png",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, council.KindInvalidRequest, decodeError(t, rec).ErrorCode)
	assert.Zero(t, f.runner.runCalls)
}

func TestMessageVisionExhaustion(t *testing.T) {
	f := newFixture()
	f.extractor.vc = nil
	f.extractor.err = vision.ErrExhausted

	rec := f.do(http.MethodPost, "/api/conversations/c1/message", "sk", MessageRequest{
		ImageBase64:   base64.StdEncoding.EncodeToString([]byte{1}),
		ImageMimeType: "image/png",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	ae := decodeError(t, rec)
	assert.Equal(t, council.KindVisionFailed, ae.ErrorCode)
	assert.Contains(t, ae.Message, "try a different image")
	assert.Zero(t, f.runner.runCalls)
}

func TestMessageStream(t *testing.T) {
	f := newFixture()
	f.runner.events = []council.Event{
		{Type: council.EventStage1Start},
		{Type: council.EventStage1Complete},
		{Type: council.EventComplete},
	}

	rec := f.do(http.MethodPost, "/api/conversations/c1/message/stream", "sk", MessageRequest{Content: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev council.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, string(ev.Type))
	}
	assert.Equal(t, []string{"stage1_start", "stage1_complete", "complete"}, types)
}

func TestMessageStreamVisionFailureIsTerminalEvent(t *testing.T) {
	f := newFixture()
	f.extractor.vc = nil
	f.extractor.err = vision.ErrExhausted

	rec := f.do(http.MethodPost, "/api/conversations/c1/message/stream", "sk", MessageRequest{
		ImageBase64:   base64.StdEncoding.EncodeToString([]byte{1}),
		ImageMimeType: "image/png",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"error"`)
	assert.Contains(t, rec.Body.String(), string(council.KindVisionFailed))
}

func TestConversationCRUD(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/conversations", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv storage.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.NotEmpty(t, conv.ID)

	rec = f.do(http.MethodGet, "/api/conversations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []storage.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, conv.ID, summaries[0].ID)

	rec = f.do(http.MethodGet, "/api/conversations/"+conv.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/conversations/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVisionExtractEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/vision/extract", "sk", VisionExtractRequest{
		ImageBase64:   base64.StdEncoding.EncodeToString([]byte{1, 2}),
		ImageMimeType: "image/jpeg",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var vc vision.Context
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vc))
	assert.Equal(t, "image text", vc.ExtractedText)
}

func TestVisionExtractRequiresKey(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/vision/extract", "", VisionExtractRequest{
		ImageBase64:   base64.StdEncoding.EncodeToString([]byte{1}),
		ImageMimeType: "image/png",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, council.KindMissingAPIKey, decodeError(t, rec).ErrorCode)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture()
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/health"},
		{http.MethodPost, "/api/models/free"},
		{http.MethodDelete, "/api/conversations"},
		{http.MethodGet, "/api/conversations/c1/message"},
		{http.MethodGet, "/api/vision/extract"},
	} {
		rec := f.do(tc.method, tc.path, "sk", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}
}
