package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/id"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/requestctx"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/setup"
)

const (
	maxBodyBytes    = 64 << 10
	requestIDHeader = "X-Request-ID"
)

type statusResponse struct {
	State   string `json:"state"`
	Version string `json:"version"`
}

type databaseRequest struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	File     string `json:"file"`
}

type setupRequest struct {
	Database        databaseRequest `json:"database"`
	AdminUsername   string          `json:"admin_username"`
	AdminPassword   string          `json:"admin_password"`
	InstanceName    string          `json:"instance_name"`
	DefaultLanguage string          `json:"default_language"`
	LicenseAccepted bool            `json:"license_accepted"`
}

type detectResponse struct {
	Detected bool   `json:"detected"`
	Provider string `json:"provider,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handler serves the setup, health and metrics endpoints.
type handler struct {
	instance *Instance
	logger   logrus.FieldLogger
}

// NewHandler returns the HTTP surface of inst. metrics may be nil.
func NewHandler(inst *Instance, metrics http.Handler, logger logrus.FieldLogger) http.Handler {
	h := &handler{instance: inst, logger: logging.OrDiscard(logger)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /setup/status", h.handleStatus)
	mux.HandleFunc("POST /setup/database/detect", h.handleDetect)
	mux.HandleFunc("POST /setup", h.handleSetup)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return withRequestID(mux)
}

// withRequestID propagates the caller's X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			generated, err := id.NewID()
			if err == nil {
				requestID = generated
			}
		}
		if requestID != "" {
			w.Header().Set(requestIDHeader, requestID)
			r = r.WithContext(requestctx.WithRequestID(r.Context(), requestID))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	current, err := h.instance.State(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{State: string(current), Version: h.instance.Version()})
}

func (h *handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	if h.instance.Ready() {
		h.writeError(w, r, apperrors.New(apperrors.CodeAlreadyConfigured, "instance is already configured"))
		return
	}
	var req databaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	provider, ok := h.instance.Detect(r.Context(), database.Candidate{
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Name,
		Username: req.User,
		Password: req.Password,
	})
	writeJSON(w, http.StatusOK, detectResponse{Detected: ok, Provider: provider.String()})
}

func (h *handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, err := req.configuration()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.InstanceName == "" {
		cfg.InstanceName = "HomeBook"
	}
	if err := h.instance.RunSetup(r.Context(), cfg); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !h.instance.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (req setupRequest) configuration() (setup.Configuration, error) {
	conn := database.Connection{
		Host:     req.Database.Host,
		Port:     req.Database.Port,
		Name:     req.Database.Name,
		User:     req.Database.User,
		Password: req.Database.Password,
		File:     req.Database.File,
	}
	if req.Database.Type != "" {
		provider, err := database.ParseProvider(req.Database.Type)
		if err != nil {
			return setup.Configuration{}, err
		}
		conn.Provider = provider
	}
	return setup.Configuration{
		Connection:      conn,
		AdminUsername:   req.AdminUsername,
		AdminPassword:   req.AdminPassword,
		InstanceName:    req.InstanceName,
		DefaultLanguage: req.DefaultLanguage,
		LicenseAccepted: req.LicenseAccepted,
	}, nil
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigInvalid, "invalid request body", err)
	}
	return nil
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"code":       string(code),
			"request_id": requestctx.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("setup request failed")
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
