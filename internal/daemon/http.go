package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velmie/worklog"
	"github.com/velmie/worklog/index"
)

// maxSubmitBody caps one submission request.
const maxSubmitBody = 1 << 20

type submitter interface {
	Submit(txID worklog.TxID, items ...index.Update) error
}

type statser interface {
	Stats() worklog.Stats
}

type updateRequest struct {
	NodeID   uint64 `json:"node_id"`
	Property uint32 `json:"property"`
	Value    uint64 `json:"value"`
	Op       string `json:"op"`
}

type statsResponse struct {
	Path         string `json:"path"`
	Started      bool   `json:"started"`
	Recovered    bool   `json:"recovered"`
	Records      int64  `json:"records"`
	ReadOffset   int64  `json:"read_offset"`
	AppendOffset int64  `json:"append_offset"`
	Outstanding  int    `json:"outstanding"`
	Drained      bool   `json:"drained"`
}

func newHandler(sub submitter, st statser, gatherer prometheus.Gatherer, logger worklog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /v1/transactions/{tx}", func(w http.ResponseWriter, r *http.Request) {
		txID, err := strconv.ParseUint(r.PathValue("tx"), 10, 32)
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}
		var reqs []updateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&reqs); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(reqs) == 0 {
			http.Error(w, "no updates", http.StatusBadRequest)
			return
		}
		updates := make([]index.Update, len(reqs))
		for i, req := range reqs {
			u, err := req.update()
			if err != nil {
				http.Error(w, fmt.Sprintf("update %d: %v", i, err), http.StatusBadRequest)
				return
			}
			updates[i] = u
		}
		if err := sub.Submit(worklog.TxID(txID), updates...); err != nil {
			logger.Error("worklogd submit failed", "tx_id", txID, "err", err)
			status := http.StatusInternalServerError
			if errors.Is(err, worklog.ErrInvalidState) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		s := st.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsResponse{
			Path:         s.Path,
			Started:      s.Started,
			Recovered:    s.Recovered,
			Records:      s.Records,
			ReadOffset:   s.ReadOffset,
			AppendOffset: s.AppendOffset,
			Outstanding:  s.Outstanding,
			Drained:      s.Drained(),
		})
	})
	return mux
}

func (r updateRequest) update() (index.Update, error) {
	u := index.Update{NodeID: r.NodeID, Property: r.Property, Value: r.Value}
	switch r.Op {
	case "set", "":
		u.Op = index.OpSet
	case "delete":
		u.Op = index.OpDelete
	default:
		return index.Update{}, fmt.Errorf("unknown op %q", r.Op)
	}
	return u, nil
}
