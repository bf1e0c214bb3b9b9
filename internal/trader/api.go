package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"kraken-auto-trader-go/internal/alerts"
	"kraken-auto-trader-go/internal/monitoring"

	"go.uber.org/zap"
)

// AlertControl is the operator surface of the alert manager.
type AlertControl interface {
	Enable()
	Disable()
	Enabled() bool
	History() []alerts.Alert
	Status() alerts.Status
}

// APIServer provides an HTTP control interface for the trading engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	alerts AlertControl
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(engine *Engine, alertControl AlertControl, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		alerts: alertControl,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes of the control API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stop", s.stopHandler)
	mux.HandleFunc("/alerts", s.alertsHandler)
	mux.HandleFunc("/alerts/history", s.alertHistoryHandler)
	mux.HandleFunc("/alerts/enable", s.alertToggleHandler(true))
	mux.HandleFunc("/alerts/disable", s.alertToggleHandler(false))
	mux.Handle("/metrics", monitoring.Handler())
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

type statusResponse struct {
	Status
	Uptime string `json:"uptime,omitempty"`
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.engine.Status()
	resp := statusResponse{Status: st}
	if st.Running && st.StartedAt != nil {
		resp.Uptime = time.Since(*st.StartedAt).Round(time.Second).String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info("Stop requested via API")
	s.engine.RequestStop()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"state": string(s.engine.Status().State)})
}

func (s *APIServer) alertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.alerts.Status())
}

func (s *APIServer) alertHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	history := s.alerts.History()
	if history == nil {
		history = []alerts.Alert{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *APIServer) alertToggleHandler(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if enable {
			s.alerts.Enable()
		} else {
			s.alerts.Disable()
		}
		enabled := s.alerts.Enabled()
		s.logger.Info("Alerts toggled via API", zap.Bool("enabled", enabled))
		s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
	}
}

func (s *APIServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
