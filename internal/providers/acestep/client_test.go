package acestep

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songapi/internal/domain"
)

const testToken = "abc123def45"

type queueServer struct {
	t         *testing.T
	joinCode  int
	joinBody  []byte
	mu        sync.Mutex
	dataCalls atomic.Int32
	responses []string
}

// newQueueServer answers poll n with responses[n], repeating the last one.
func newQueueServer(t *testing.T, responses ...string) (*queueServer, *httptest.Server) {
	t.Helper()
	qs := &queueServer{t: t, joinCode: http.StatusOK, responses: responses}
	mux := http.NewServeMux()
	mux.HandleFunc(joinPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		qs.mu.Lock()
		qs.joinBody = body
		code := qs.joinCode
		qs.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"event_id":"evt-1"}`))
	})
	mux.HandleFunc(dataPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.URL.Query().Get("session_hash"))
		n := int(qs.dataCalls.Add(1)) - 1
		if n >= len(qs.responses) {
			n = len(qs.responses) - 1
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(qs.responses[n]))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return qs, ts
}

func (qs *queueServer) lastJoin() []byte {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.joinBody
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:         baseURL,
		NewSessionToken: func() string { return testToken },
	})
}

func fastBudget(attempts int) PollBudget {
	return PollBudget{MaxAttempts: attempts, Interval: 5 * time.Millisecond}
}

const pendingStream = "data: {\"msg\":\"estimation\",\"rank\":0}\n\ndata: {\"msg\":\"process_starts\"}\n\n"

const completeStream = "data: {\"msg\":\"process_starts\"}\n\n" +
	"data: {\"msg\":\"process_completed\",\"success\":true,\"output\":{\"data\":[{\"url\":\"https://cdn.example/song.mp3\",\"path\":\"/tmp/song.mp3\"}]}}\n\n" +
	"data: {\"msg\":\"process_completed\",\"output\":{\"data\":[{\"url\":\"https://cdn.example/other.mp3\"}]}}\n\n"

const (
	failedStream = "data: {\"msg\":\"process_failed\"}\n\n"
	fullStream   = ": heartbeat\n\ndata: {\"msg\":\"queue_full\"}\n\n"
)

func TestSubmitAndWaitCompletesOnFirstTerminalEvent(t *testing.T) {
	qs, ts := newQueueServer(t, completeStream)
	client := newTestClient(ts.URL)

	job, err := client.SubmitAndWait(context.Background(), "pop, romantic", "[verse]\nla la", fastBudget(10))
	require.NoError(t, err)
	assert.Equal(t, domain.AudioJobCompleted, job.Status)
	assert.Equal(t, "https://cdn.example/song.mp3", job.ResultURL)
	assert.Equal(t, testToken, job.SessionToken)
	assert.Equal(t, 1, job.Attempts)
	assert.EqualValues(t, 1, qs.dataCalls.Load())
}

func TestSubmitAndWaitPollsUntilComplete(t *testing.T) {
	qs, ts := newQueueServer(t, pendingStream, pendingStream, completeStream)
	client := newTestClient(ts.URL)

	job, err := client.SubmitAndWait(context.Background(), "rock", "lyrics", fastBudget(10))
	require.NoError(t, err)
	assert.Equal(t, domain.AudioJobCompleted, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.EqualValues(t, 3, qs.dataCalls.Load())
}

func TestSubmitAndWaitUpstreamFailureStopsPolling(t *testing.T) {
	cases := []struct {
		name   string
		stream string
		reason string
	}{
		{name: "process failed", stream: failedStream, reason: "process_failed"},
		{name: "queue full", stream: fullStream, reason: "queue_full"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qs, ts := newQueueServer(t, tc.stream, completeStream)
			client := newTestClient(ts.URL)

			job, err := client.SubmitAndWait(context.Background(), "pop", "lyrics", fastBudget(10))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrUpstreamJob))
			assert.Contains(t, err.Error(), tc.reason)
			var failure *domain.JobFailure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tc.reason, failure.Msg)
			assert.Equal(t, domain.AudioJobFailed, job.Status)
			assert.Equal(t, tc.reason, job.Reason)
			assert.EqualValues(t, 1, qs.dataCalls.Load())
		})
	}
}

func TestSubmitAndWaitTimesOutWithinBudget(t *testing.T) {
	qs, ts := newQueueServer(t, pendingStream)
	client := newTestClient(ts.URL)
	budget := PollBudget{MaxAttempts: 4, Interval: 10 * time.Millisecond}

	start := time.Now()
	job, err := client.SubmitAndWait(context.Background(), "pop", "lyrics", budget)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, domain.AudioJobTimedOut, job.Status)
	assert.Equal(t, 4, job.Attempts)
	assert.EqualValues(t, 4, qs.dataCalls.Load())
	assert.Less(t, elapsed, time.Second)
}

func TestSubmitAndWaitContextDeadline(t *testing.T) {
	_, ts := newQueueServer(t, pendingStream)
	client := newTestClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	job, err := client.SubmitAndWait(ctx, "pop", "lyrics", PollBudget{MaxAttempts: 1000, Interval: 20 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, domain.AudioJobTimedOut, job.Status)
	assert.Less(t, job.Attempts, 1000)
}

func TestSubmitAndWaitPollTransportErrorIsFatal(t *testing.T) {
	var dataCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(joinPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"event_id":"evt-1"}`))
	})
	mux.HandleFunc(dataPath, func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	job, err := newTestClient(ts.URL).SubmitAndWait(context.Background(), "pop", "lyrics", fastBudget(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.False(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, domain.AudioJobFailed, job.Status)
	assert.EqualValues(t, 1, dataCalls.Load())
}

func TestSubmitAndWaitJoinRejected(t *testing.T) {
	qs, ts := newQueueServer(t, completeStream)
	qs.mu.Lock()
	qs.joinCode = http.StatusServiceUnavailable
	qs.mu.Unlock()
	client := newTestClient(ts.URL)

	job, err := client.SubmitAndWait(context.Background(), "pop", "lyrics", fastBudget(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamJob))
	assert.Equal(t, domain.AudioJobFailed, job.Status)
	assert.Zero(t, job.Attempts)
	assert.EqualValues(t, 0, qs.dataCalls.Load())
}

func TestSubmitAndWaitJoinErrorOmitsUpstreamBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(joinPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body>nginx internal upstream 10.0.3.4:7860 down</body></html>"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := newTestClient(ts.URL).SubmitAndWait(context.Background(), "pop", "lyrics", fastBudget(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamJob))
	assert.Contains(t, err.Error(), "join status 502")
	assert.NotContains(t, err.Error(), "10.0.3.4")
	assert.NotContains(t, err.Error(), "<html>")
}

func TestSubmitAndWaitStalledPollIsUpstreamFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mux := http.NewServeMux()
	mux.HandleFunc(joinPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"event_id":"evt-1"}`))
	})
	mux.HandleFunc(dataPath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(Options{
		BaseURL:         ts.URL,
		HTTPClient:      &http.Client{Timeout: 50 * time.Millisecond},
		NewSessionToken: func() string { return "stalled0001" },
	})
	job, err := client.SubmitAndWait(context.Background(), "pop", "lyrics", fastBudget(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.False(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, domain.AudioJobFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
}

func TestSubmitJoinPayload(t *testing.T) {
	qs, ts := newQueueServer(t, completeStream)
	client := newTestClient(ts.URL)

	_, err := client.SubmitAndWait(context.Background(), "jazz, mellow", "[chorus]\nhey", fastBudget(2))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(qs.lastJoin(), &payload))
	assert.EqualValues(t, 11, payload["fn_index"])
	assert.EqualValues(t, 45, payload["trigger_id"])
	assert.Equal(t, testToken, payload["session_hash"])
	assert.Contains(t, payload, "event_data")
	assert.Nil(t, payload["event_data"])

	data, ok := payload["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 22)
	assert.EqualValues(t, 240, data[0])
	assert.Equal(t, "jazz, mellow", data[1])
	assert.Equal(t, "[chorus]\nhey", data[2])
	assert.EqualValues(t, 60, data[3])
	assert.Equal(t, "euler", data[5])
	assert.Equal(t, "apg", data[6])
	assert.Equal(t, true, data[12])
	assert.Equal(t, false, data[13])
	assert.Nil(t, data[20])
	assert.Equal(t, "none", data[21])
}

func TestNewSessionToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok := NewSessionToken()
		require.Len(t, tok, 11)
		assert.Equal(t, strings.ToLower(tok), tok)
		assert.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
}
