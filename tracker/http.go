package tracker

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fjl/memsize"
	"github.com/rs/cors"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/registry"
)

// Inspector exposes the tracker's registry as read-only JSON, the debug
// surface grounded on api/inspector.go's Hive/KademliaInfo introspection
// methods: where that Inspector wraps a Hive and a NetStore, this one
// wraps a registry.Registry, the only piece of tracker-side state worth
// inspecting.
type Inspector struct {
	reg   *registry.Registry
	phase func() Phase
}

// NewInspector builds an Inspector over reg; phase reports the owning
// Controller's current lifecycle phase.
func NewInspector(reg *registry.Registry, phase func() Phase) *Inspector {
	return &Inspector{reg: reg, phase: phase}
}

// statusResponse is the JSON shape of GET /status.
type statusResponse struct {
	Phase          string                       `json:"phase"`
	FinishedCount  int                          `json:"finishedCount"`
	NonSeederCount int                          `json:"nonSeederCount"`
	MaxFileID      int                          `json:"maxFileId"`
	RanksByKind    map[string][]int             `json:"ranksByKind"`
}

// Status returns the registry.Snapshot as the JSON-friendly statusResponse.
func (ins *Inspector) Status() statusResponse {
	snap := ins.reg.Snapshot()
	byKind := make(map[string][]int, len(snap.RanksByKind))
	for kind, ranks := range snap.RanksByKind {
		ints := make([]int, len(ranks))
		for i, r := range ranks {
			ints[i] = int(r)
		}
		byKind[kind] = ints
	}
	return statusResponse{
		Phase:          ins.phase().String(),
		FinishedCount:  snap.FinishedCount,
		NonSeederCount: snap.NonSeederCount,
		MaxFileID:      int(snap.MaxFileID),
		RanksByKind:    byKind,
	}
}

// Swarm returns the current swarm for a file id, self-exclusion disabled
// (no client rank to exclude from an operator's point of view).
func (ins *Inspector) Swarm(file chunk.FileID) []registry.PeerEntry {
	return ins.reg.Swarm(file, -1)
}

// Handler builds the tracker's debug/inspection HTTP surface: /status,
// /swarms/{fileID} and /debug/memsize on a mux of its own, so the
// /debug/metrics/prometheus route that metrics.Setup registers on
// http.DefaultServeMux is not served here. It is wrapped in a permissive CORS policy
// the way api/http/test_server.go implies a production HTTP surface needs
// one. This surface is read-only and never touches protocol state.
func (ins *Inspector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ins.Status())
	})
	mux.HandleFunc("/swarms/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/swarms/%d", &id); err != nil {
			http.Error(w, "bad file id", http.StatusBadRequest)
			return
		}
		writeJSON(w, ins.Swarm(chunk.FileID(id)))
	})
	mux.HandleFunc("/debug/memsize", func(w http.ResponseWriter, r *http.Request) {
		report := memsize.Scan(ins.reg)
		writeJSON(w, report)
	})
	return cors.Default().Handler(mux)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
