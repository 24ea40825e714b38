package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"smartcastbridge/internal/device"

	"go.uber.org/zap"
)

// Server exposes local diagnostics for the bridge: device availability,
// the per-operation transport selection, and the last published state.
type Server struct {
	entities []*device.Entity
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a diagnostics server over the given entities.
func NewServer(entities []*device.Entity, logger *zap.Logger, port int) *Server {
	s := &Server{
		entities: entities,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/devices", s.handleGetDevices)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// DeviceStatus is the JSON shape of one device in the devices endpoint.
type DeviceStatus struct {
	Name       string            `json:"name"`
	EntityID   string            `json:"entity_id"`
	Available  bool              `json:"available"`
	PowerOn    bool              `json:"power_on"`
	Volume     float64           `json:"volume_level"`
	Muted      bool              `json:"muted"`
	Input      string            `json:"input,omitempty"`
	App        string            `json:"app,omitempty"`
	SoundMode  string            `json:"sound_mode,omitempty"`
	Transports map[string]string `json:"transports"`
}

// handleGetDevices returns the current snapshot and transport selection of
// every configured device.
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices := make([]DeviceStatus, 0, len(s.entities))
	for _, e := range s.entities {
		snap := e.Snapshot()
		devices = append(devices, DeviceStatus{
			Name:       e.Name(),
			EntityID:   e.EntityID(),
			Available:  snap.Available,
			PowerOn:    snap.PowerOn,
			Volume:     snap.VolumeLevel,
			Muted:      snap.Muted,
			Input:      snap.CurrentInput,
			App:        snap.CurrentApp,
			SoundMode:  snap.SoundMode,
			Transports: e.Matrix().Summary(),
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].EntityID < devices[j].EntityID })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"devices": devices}); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("Devices request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{
			Path:        "/",
			Method:      "GET",
			Description: "This sitemap - lists all available API endpoints",
		},
		{
			Path:        "/api/devices",
			Method:      "GET",
			Description: "Get every device's state snapshot and per-operation transport selection",
		},
		{
			Path:        "/health",
			Method:      "GET",
			Description: "Health check endpoint - returns {\"status\": \"ok\"}",
		},
	}

	// Return 404 status code (for automation compatibility) but with helpful body
	w.WriteHeader(http.StatusNotFound)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "SmartCast Bridge Diagnostics\n")
	fmt.Fprintf(w, "============================\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-10s %-20s %s\n", ep.Method, ep.Path, ep.Description)
	}
	fmt.Fprintf(w, "\nExamples:\n\n")
	fmt.Fprintf(w, "  List devices:\n")
	fmt.Fprintf(w, "    curl http://localhost:8099/api/devices | jq\n\n")
	fmt.Fprintf(w, "  Health check:\n")
	fmt.Fprintf(w, "    curl http://localhost:8099/health\n\n")

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting diagnostics server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping diagnostics server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
