package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskqueue/internal/config"
	"taskqueue/internal/domain"
)

type staticEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *staticEvents) add(evts ...domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evts...)
}

func (s *staticEvents) Latest(context.Context, int, string, string) ([]domain.Event, error) {
	return nil, nil
}

func (s *staticEvents) After(_ context.Context, limit int, afterID int64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Event{}
	for _, e := range s.events {
		if e.ID > afterID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *staticEvents) LatestID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].ID, nil
}

type receiver struct {
	mu      sync.Mutex
	bodies  []webhookEvent
	headers []http.Header
	status  int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	r.bodies = append(r.bodies, evt)
	r.headers = append(r.headers, req.Header.Clone())
}

func (r *receiver) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, b := range r.bodies {
		out = append(out, b.Type)
	}
	return out
}

func TestWebhookDeliversOnlyNewMatchingEvents(t *testing.T) {
	ctx := context.Background()
	store := &staticEvents{}
	store.add(domain.Event{ID: 1, Type: "project.created", ProjectID: "proj-1", EntityKind: "project", EntityID: "proj-1", Payload: "{}"})

	rcv := &receiver{}
	hook := httptest.NewServer(rcv)
	t.Cleanup(hook.Close)

	d := NewWebhookDispatcher(store, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"task.*", "project.finalized"},
		Secret: "shh",
	}}, nil)
	d.dispatchAll(ctx)
	assert.Empty(t, rcv.types())

	store.add(
		domain.Event{ID: 2, Type: "task.updated", ProjectID: "proj-1", EntityKind: "task", EntityID: "task-1", Payload: `{"to_status":"done"}`},
		domain.Event{ID: 3, Type: "project.updated", ProjectID: "proj-1", EntityKind: "project", EntityID: "proj-1"},
		domain.Event{ID: 4, Type: "project.finalized", ProjectID: "proj-1", EntityKind: "project", EntityID: "proj-1"},
	)
	d.dispatchAll(ctx)
	require.Equal(t, []string{"task.updated", "project.finalized"}, rcv.types())

	rcv.mu.Lock()
	first, headers := rcv.bodies[0], rcv.headers[0]
	rcv.mu.Unlock()
	assert.JSONEq(t, `{"to_status":"done"}`, string(first.Payload))
	assert.Equal(t, "task.updated", headers.Get("X-Taskqueue-Event"))
	assert.Equal(t, "2", headers.Get("X-Taskqueue-Event-Id"))
	assert.Equal(t, "proj-1", headers.Get("X-Taskqueue-Project"))
	assert.Equal(t, "shh", headers.Get("X-Taskqueue-Secret"))
	assert.NotEmpty(t, headers.Get("X-Taskqueue-Delivery"))

	d.dispatchAll(ctx)
	assert.Len(t, rcv.types(), 2)
}

func TestWebhookRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := &staticEvents{}
	rcv := &receiver{status: http.StatusBadGateway}
	hook := httptest.NewServer(rcv)
	t.Cleanup(hook.Close)

	d := NewWebhookDispatcher(store, []config.WebhookConfig{{URL: hook.URL}}, nil)
	d.dispatchAll(ctx)
	store.add(domain.Event{ID: 1, Type: "task.created", EntityKind: "task", EntityID: "task-1"})

	d.dispatchAll(ctx)
	assert.Empty(t, rcv.types())

	rcv.mu.Lock()
	rcv.status = 0
	rcv.mu.Unlock()
	d.dispatchAll(ctx)
	assert.Equal(t, []string{"task.created"}, rcv.types())
}

func TestWebhookSkipsDisabledHooks(t *testing.T) {
	ctx := context.Background()
	store := &staticEvents{}
	rcv := &receiver{}
	hook := httptest.NewServer(rcv)
	t.Cleanup(hook.Close)

	off := false
	d := NewWebhookDispatcher(store, []config.WebhookConfig{{URL: hook.URL, Enabled: &off}}, nil)
	d.dispatchAll(ctx)
	store.add(domain.Event{ID: 1, Type: "task.created"})
	d.dispatchAll(ctx)
	assert.Empty(t, rcv.types())
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("task.created"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{"task.*", "project.deleted"})
	assert.True(t, f.match("task.approved"))
	assert.True(t, f.match("project.deleted"))
	assert.False(t, f.match("project.created"))
	assert.False(t, f.match("taskless"))
}
