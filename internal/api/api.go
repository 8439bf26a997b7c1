// Package api serves read-only simulation status over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/visualization"
	"github.com/signalsfoundry/wsn-simulator/model"
)

// StatusStore is the read side of the published round results.
// *state.TelemetryState satisfies it.
type StatusStore interface {
	Latest() (model.RoundStats, bool)
	History() []model.RoundStats
	Nodes() []model.NodeSnapshot
	Node(id string) (model.NodeSnapshot, bool)
	Edges() []model.EdgeSnapshot
	Exhausted() bool
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Started   bool              `json:"started"`
	Exhausted bool              `json:"exhausted"`
	Latest    *model.RoundStats `json:"latest,omitempty"`
}

// Handler serves the status routes.
type Handler struct {
	store   StatusStore
	metrics http.Handler
	log     logging.Logger
}

// NewHandler builds a handler. A nil metrics handler disables /metrics.
func NewHandler(store StatusStore, metrics http.Handler, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{store: store, metrics: metrics, log: log}
}

// NewRouter returns a router with every route registered.
func NewRouter(store StatusStore, metrics http.Handler, log logging.Logger) *mux.Router {
	r := mux.NewRouter()
	NewHandler(store, metrics, log).RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the routes and the access-log middleware to r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.accessLog)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/rounds", h.Rounds).Methods(http.MethodGet)
	r.HandleFunc("/nodes", h.ListNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id}", h.GetNode).Methods(http.MethodGet)
	r.HandleFunc("/topology.dot", h.Topology).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
}

// Health reports liveness, and 503 once every sensor is dead.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.store.Exhausted() {
		status, code = "exhausted", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Exhausted: h.store.Exhausted()}
	if latest, ok := h.store.Latest(); ok {
		resp.Started = true
		resp.Latest = &latest
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rounds returns the retained history; ?limit=N keeps the last N rounds.
func (h *Handler) Rounds(w http.ResponseWriter, r *http.Request) {
	history := h.store.History()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rounds": history,
		"count":  len(history),
	})
}

func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.store.Nodes()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	node, ok := h.store.Node(id)
	if !ok {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// Topology renders the latest feasible topology as Graphviz DOT.
func (h *Handler) Topology(w http.ResponseWriter, r *http.Request) {
	name := "wsn"
	if latest, ok := h.store.Latest(); ok {
		name = "round_" + strconv.Itoa(latest.Round)
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := visualization.RenderDOT(w, name, h.store.Nodes(), h.store.Edges()); err != nil {
		h.log.Error(r.Context(), "render topology", logging.Err(err))
		http.Error(w, "failed to render topology", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug(r.Context(), "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
