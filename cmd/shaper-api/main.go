package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"NetShaper/internal/config"
	"NetShaper/internal/logging"
	"NetShaper/internal/query"

	"github.com/gorilla/mux"
)

var log = logging.NewComponentLogger("shaper-api")

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Find the first enabled ClickHouse writer config; the API reads the
	// tables that writer populates.
	var chCfg *config.ClickHouseConfig
	for _, writerDef := range cfg.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			chCfg = &writerDef.ClickHouse
			break
		}
	}
	if chCfg == nil {
		log.Fatal("no enabled ClickHouse writer found in config, API server cannot start")
	}

	querier, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		log.Fatalf("failed to create querier: %v", err)
	}

	apiHandler := &APIHandler{querier: querier}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/policies/aggregate", apiHandler.aggregatePoliciesHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/{flow_id}/trace", apiHandler.traceFlowHandler).Methods("GET")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", server.Addr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Info("API server exited")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
}

// aggregatePoliciesHandler returns the latest per-policy counters.
// Optional query parameters: iface, since (RFC 3339).
func (h *APIHandler) aggregatePoliciesHandler(w http.ResponseWriter, r *http.Request) {
	iface := r.URL.Query().Get("iface")
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid 'since' timestamp: "+err.Error(), http.StatusBadRequest)
			return
		}
		since = parsed
	}

	summaries, err := h.querier.AggregatePolicies(r.Context(), iface, since)
	if err != nil {
		http.Error(w, "query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

// traceFlowHandler returns the stored observations of one flow.
func (h *APIHandler) traceFlowHandler(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["flow_id"]
	flowID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid flow id: "+err.Error(), http.StatusBadRequest)
		return
	}

	points, err := h.querier.TraceFlow(r.Context(), flowID)
	if err != nil {
		http.Error(w, "query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}
