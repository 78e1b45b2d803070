package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usvsthem-notdev/driftq/internal/deadletter"
	"github.com/usvsthem-notdev/driftq/internal/queue"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Queue) {
	t.Helper()

	store := deadletter.New(filepath.Join(t.TempDir(), "dead_letters.json"))
	require.NoError(t, store.Load())

	q := queue.New(store,
		queue.WithDefaultMaxRetries(2),
		queue.WithDefaultRetryDelay(5*time.Millisecond),
	)
	srv := httptest.NewServer(NewServer(q).Handler())
	t.Cleanup(srv.Close)

	return srv, q
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestEnqueueRegisteredType(t *testing.T) {
	srv, q := newTestServer(t)

	done := make(chan []byte, 1)
	require.NoError(t, q.Register("echo", func(ctx context.Context, payload []byte) error {
		done <- payload
		return nil
	}))

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]interface{}{
		"type":    "echo",
		"payload": map[string]string{"hello": "world"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out EnqueueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.JobID)

	select {
	case payload := <-done:
		assert.JSONEq(t, `{"hello":"world"}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestEnqueueUnknownType(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]interface{}{
		"type": "never-registered",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnqueueMissingType(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]interface{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	srv, q := newTestServer(t)

	require.NoError(t, q.Register("noop", func(ctx context.Context, payload []byte) error { return nil }))
	_, err := q.Enqueue("noop", nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !q.Busy() }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats queue.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, "100.00%", stats.SuccessRate)
}

func TestDeadLetterEndpoints(t *testing.T) {
	srv, q := newTestServer(t)

	require.NoError(t, q.Register("doomed", func(ctx context.Context, payload []byte) error {
		return errors.New("permanent failure")
	}))

	_, err := q.Enqueue("doomed", []byte(`{"n":1}`), nil,
		queue.WithMaxRetries(1), queue.WithRetryDelayBase(time.Millisecond))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// List
	resp, err := http.Get(srv.URL + "/v1/dlq")
	require.NoError(t, err)
	var list DeadLettersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Entries, 1)
	entryID := list.Entries[0].ID

	// Requeue pops the entry and re-enqueues through the registry
	resp = postJSON(t, srv.URL+"/v1/dlq/"+entryID+"/requeue", nil)
	var requeued RequeueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&requeued))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, requeued.JobID)
	assert.Equal(t, entryID, requeued.Entry.ID)

	// The entry is gone; requeueing again is a 404
	resp = postJSON(t, srv.URL+"/v1/dlq/"+entryID+"/requeue", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The requeued job fails again and lands back in the DLQ
	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// Clear
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/dlq", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, q.DeadLetters())
}

func TestRequeueUnregisteredTypeKeepsEntry(t *testing.T) {
	srv, q := newTestServer(t)

	// Dead-letter a job with an ad-hoc handler; after a restart this is the
	// normal shape of the store, since only the entries persist.
	_, err := q.Enqueue("adhoc", []byte(`{"n":1}`), func(ctx context.Context, payload []byte) error {
		return errors.New("permanent failure")
	}, queue.WithMaxRetries(1), queue.WithRetryDelayBase(time.Millisecond))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 5*time.Second, 10*time.Millisecond)

	entryID := q.DeadLetters()[0].ID

	resp := postJSON(t, srv.URL+"/v1/dlq/"+entryID+"/requeue", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// The entry must survive the rejected requeue
	entries := q.DeadLetters()
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)

	// Registering the handler makes the same requeue succeed
	require.NoError(t, q.Register("adhoc", func(ctx context.Context, payload []byte) error { return nil }))
	resp = postJSON(t, srv.URL+"/v1/dlq/"+entryID+"/requeue", nil)
	var requeued RequeueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&requeued))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, entryID, requeued.Entry.ID)
	assert.Empty(t, q.DeadLetters())
}

func TestClearEndpoint(t *testing.T) {
	srv, q := newTestServer(t)

	block := make(chan struct{})
	require.NoError(t, q.Register("blocker", func(ctx context.Context, payload []byte) error {
		<-block
		return nil
	}))
	require.NoError(t, q.Register("pending", func(ctx context.Context, payload []byte) error { return nil }))

	_, err := q.Enqueue("blocker", nil, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue("pending", nil, nil)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return q.GetStats().CurrentQueueSize == 3 }, 5*time.Second, time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/jobs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out ClearResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 3, out.Discarded)

	close(block)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
