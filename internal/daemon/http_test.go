package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/velmie/worklog"
	"github.com/velmie/worklog/index"
)

type fakeSubmitter struct {
	txID    worklog.TxID
	updates []index.Update
	err     error
}

func (f *fakeSubmitter) Submit(txID worklog.TxID, items ...index.Update) error {
	if f.err != nil {
		return f.err
	}
	f.txID = txID
	f.updates = append(f.updates, items...)
	return nil
}

type fixedStats worklog.Stats

func (s fixedStats) Stats() worklog.Stats { return worklog.Stats(s) }

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTransaction(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newHandler(sub, fixedStats{}, prometheus.NewRegistry(), worklog.NopLogger{})

	rec := serve(t, h, http.MethodPost, "/v1/transactions/42",
		`[{"node_id":1,"property":2,"value":3,"op":"set"},{"node_id":1,"property":2,"op":"delete"}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, worklog.TxID(42), sub.txID)
	require.Equal(t, []index.Update{
		{NodeID: 1, Property: 2, Value: 3, Op: index.OpSet},
		{NodeID: 1, Property: 2, Op: index.OpDelete},
	}, sub.updates)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHandler(&fakeSubmitter{}, fixedStats{}, prometheus.NewRegistry(), worklog.NopLogger{})

	require.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/v1/transactions/x", `[]`).Code)
	require.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/v1/transactions/4294967296", `[{}]`).Code)
	require.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/v1/transactions/1", `[]`).Code)
	require.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/v1/transactions/1", `{`).Code)
	require.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodPost, "/v1/transactions/1", `[{"op":"upsert"}]`).Code)
}

func TestSubmitMapsWorkerState(t *testing.T) {
	sub := &fakeSubmitter{err: errors.Join(worklog.ErrInvalidState, errors.New("draining"))}
	h := newHandler(sub, fixedStats{}, prometheus.NewRegistry(), worklog.NopLogger{})

	rec := serve(t, h, http.MethodPost, "/v1/transactions/1", `[{"node_id":1}]`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsAndMetrics(t *testing.T) {
	st := fixedStats{Path: "/tmp/a.log", Started: true, Records: 3, ReadOffset: 78, AppendOffset: 78}
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "worklog_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	h := newHandler(&fakeSubmitter{}, st, reg, worklog.NopLogger{})

	rec := serve(t, h, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3), resp.Records)
	require.True(t, resp.Drained)

	rec = serve(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "worklog_test_total 1")
}
