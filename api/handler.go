package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/ai"
	"github.com/custonfe/nfe-cost-service/internal/db"
	"github.com/custonfe/nfe-cost-service/internal/logger"
	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/services"
	"github.com/custonfe/nfe-cost-service/internal/storage"
)

const Version = "1.0.0"

// Handler handles HTTP requests for NF-e cost analysis
type Handler struct {
	config    *models.Config
	engine    *services.AllocationEngine
	processor *services.BatchProcessor
	matcher   *services.Matcher
	logger    *zap.Logger

	// newProvider builds the AI provider for grouping=ai requests
	newProvider func(cfg models.AIConfig, providerName, modelName string) (ai.Provider, error)

	// fetchObject reads one stored NF-e object
	fetchObject func(ctx context.Context, empresaAlias, objectPath string, maxBytes int64) ([]byte, error)
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	engine := services.NewAllocationEngine(config.Allocation.Policy)
	return &Handler{
		config:      config,
		engine:      engine,
		processor:   services.NewBatchProcessor(engine, config.Batch.Concurrency, log),
		matcher:     services.NewMatcher(),
		logger:      log,
		newProvider: ai.NewProvider,
		fetchObject: storage.FetchDocument,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Uploads
	router.HandleFunc("/api/nfe/analyze", h.Analyze).Methods("POST")
	router.HandleFunc("/api/nfe/compare", h.Compare).Methods("POST")
	router.HandleFunc("/api/nfe/convert", h.Convert).Methods("POST")

	// Documents kept in PostgreSQL or MinIO
	router.HandleFunc("/api/nfe/stored/analyze", h.AnalyzeStored).Methods("POST")
	router.HandleFunc("/api/nfe/stored/compare", h.CompareStored).Methods("POST")
	router.HandleFunc("/api/nfe/stored/objects", h.ListStoredObjects).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Memory    MemoryStats       `json:"memory"`
	Database  ServiceStatus     `json:"database"`
	Storage   ServiceStatus     `json:"storage"`
	AI        map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports process and dependency status. Database and storage are
// optional, so their absence marks the service degraded but still returns 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	databaseStatus := h.checkDatabase(r.Context())
	storageStatus := h.checkStorage()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: databaseStatus,
		Storage:  storageStatus,
		AI: map[string]string{
			"defaultProvider":  h.config.AI.DefaultProvider,
			"allocationPolicy": h.engine.Policy(),
		},
	}

	if !databaseStatus.Available || !storageStatus.Available {
		response.Status = "degraded"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if !db.Available() {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if !storage.Available() {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// readUploads reads every multipart file sent as "files" (or "file")
func (h *Handler) readUploads(w http.ResponseWriter, r *http.Request) ([]services.RawDocument, int, error) {
	maxBytes := int64(h.config.Upload.MaxSizeMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("files too large or invalid form data")
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("no files provided (use 'files' field)")
	}
	if len(headers) > h.config.Batch.MaxDocuments {
		return nil, http.StatusBadRequest, fmt.Errorf("too many files: %d (max %d)", len(headers), h.config.Batch.MaxDocuments)
	}

	docs := make([]services.RawDocument, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("failed to open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("failed to read %s", fh.Filename)
		}
		docs = append(docs, services.RawDocument{Source: fh.Filename, Data: data})
	}
	return docs, http.StatusOK, nil
}

// requestLogger returns the request-scoped logger set by logger.Middleware
func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if l := logger.FromContext(r.Context()); l != nil && l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return h.logger
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
