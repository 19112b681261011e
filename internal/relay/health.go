package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/sirupsen/logrus"
)

// HealthServer provides HTTP health check endpoints for the relay.
type HealthServer struct {
	client *blackboard.Client
	sinks  []string
	log    *logrus.Entry
	server *http.Server
}

// NewHealthServer creates a new health check server reporting the named sinks.
func NewHealthServer(client *blackboard.Client, sinks []string, log *logrus.Entry) *HealthServer {
	if log == nil {
		log = logging.Discard()
	}
	return &HealthServer{
		client: client,
		sinks:  sinks,
		log:    log,
	}
}

// Start listens on addr and serves /healthz in the background.
// It returns once the listener is bound.
func (h *HealthServer) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn(h.log, "health_server_error", err, logrus.Fields{"addr": addr})
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Redis:  "connected",
		Sinks:  h.sinks,
	}
	code := http.StatusOK

	if err := h.client.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string   `json:"status"`
	Redis  string   `json:"redis,omitempty"`
	Sinks  []string `json:"sinks,omitempty"`
	Error  string   `json:"error,omitempty"`
}
