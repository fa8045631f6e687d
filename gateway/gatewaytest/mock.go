// Package gatewaytest provides a scripted mock implementation of
// gateway.Completer for engine and extractor tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/llmcouncil/council/gateway"
)

// scripted is one queued outcome for a model.
type scripted struct {
	resp *gateway.Response
	err  error
	once bool
}

// Mock is a thread-safe gateway.Completer that returns scripted outcomes
// per model and records every request it receives.
//
// Scripts for a model run in the order they were added: one-shot scripts
// (RespondOnce/FailOnce) are consumed, a sticky script (Respond/Fail)
// repeats once reached. A model with no remaining script returns an error,
// so tests fail loudly on unexpected calls instead of silently succeeding.
type Mock struct {
	mu      sync.Mutex
	scripts map[string][]scripted
	calls   []gateway.Request
}

// NewMock creates an empty mock.
func NewMock() *Mock {
	return &Mock{scripts: make(map[string][]scripted)}
}

// Respond makes model return content on every call.
func (m *Mock) Respond(model, content string) {
	m.add(model, scripted{resp: &gateway.Response{Model: model, Content: content}})
}

// RespondOnce queues a single response for model.
func (m *Mock) RespondOnce(model, content string) {
	m.add(model, scripted{resp: &gateway.Response{Model: model, Content: content}, once: true})
}

// Fail makes model return err on every call.
func (m *Mock) Fail(model string, err error) {
	m.add(model, scripted{err: err})
}

// FailOnce queues a single failure for model.
func (m *Mock) FailOnce(model string, err error) {
	m.add(model, scripted{err: err, once: true})
}

func (m *Mock) add(model string, s scripted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[model] = append(m.scripts[model], s)
}

// Complete implements gateway.Completer.
func (m *Mock) Complete(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	queue := m.scripts[req.Model]
	if len(queue) == 0 {
		return nil, fmt.Errorf("gatewaytest: no script for model %q", req.Model)
	}
	s := queue[0]
	if s.once {
		m.scripts[req.Model] = queue[1:]
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

// Calls returns a copy of all recorded requests in arrival order.
func (m *Mock) Calls() []gateway.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the recorded requests addressed to model.
func (m *Mock) CallsFor(model string) []gateway.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []gateway.Request
	for _, c := range m.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the total number of recorded requests.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ModelsCalled returns the model of every recorded request in arrival order.
func (m *Mock) ModelsCalled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Model
	}
	return out
}
