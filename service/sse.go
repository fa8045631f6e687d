package service

import (
	"encoding/json"
	"net/http"

	"github.com/llmcouncil/council/council"
)

// ----------------------------------------------------------------------------
// POST /api/conversations/{id}/message/stream
// ----------------------------------------------------------------------------

// handleMessageStream runs the pipeline and emits progress as Server-Sent
// Events. Every event is one `data: {json}` frame carrying the engine's
// Event shape; the stream ends after exactly one terminal event (complete
// or error). Transport faults before the terminal event look like a closed
// connection to the client, which maps them to a generic error locally.
func (c *Component) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, key, err := c.decodeMessageRequest(w, r)
	if err != nil {
		c.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.writeError(w, council.NewError(council.KindInternal,
			"Streaming is not supported by this server", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev council.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			c.logger.Error("Failed to marshal event", "type", ev.Type, "error", err)
			return
		}
		if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
			return
		}
		flusher.Flush()
	}

	// Vision extraction happens before the pipeline starts, so its failure
	// is the stream's terminal event.
	prompt, err := c.resolvePrompt(r, req, key)
	if err != nil {
		emit(council.Event{
			Type:      council.EventError,
			ErrorCode: council.KindOf(err),
			Message:   err.Error(),
		})
		return
	}

	// Streamed runs are not persisted server-side: the client already holds
	// every stage payload and records the conversation itself.
	events := c.engine.RunStream(r.Context(), council.Request{
		Prompt:   prompt,
		Members:  req.CouncilMembers,
		Chairman: req.ChairmanModel,
		APIKey:   key,
	})
	for ev := range events {
		emit(ev)
	}
}
