package scan

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/id-scanner/internal/engine"
)

// maxFormSize bounds a scan upload; phone cameras produce large frames
const maxFormSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleIndex renders the page for the current state
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, s.orchestrator.View()); err != nil {
		slog.Error("Error rendering page", "error", err)
	}
}

// handleState returns the current view as JSON
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.orchestrator.View()); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleStartScan runs a scan over the uploaded frames
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "Frames are too large. Maximum upload size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["frames"]
	if len(headers) == 0 {
		jsonError(w, "No frames were captured. Please allow camera access and try again.", http.StatusBadRequest)
		return
	}

	frames := make([]engine.Frame, 0, len(headers))
	for _, header := range headers {
		frame, err := readFrame(header)
		if err != nil {
			slog.Error("Error reading frame", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading frame. Please try again.", http.StatusInternalServerError)
			return
		}
		frames = append(frames, frame)
	}

	camera := engine.ParseCameraPreference(r.FormValue("camera"))
	outcome, err := s.orchestrator.StartScan(r.Context(), engine.NewStaticFrames(frames...), camera)
	if errors.Is(err, ErrNotReady) {
		jsonError(w, "A scan is already running or the scanner is not ready", http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("Error scanning document", "frames", len(frames), "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// readFrame reads one uploaded frame and determines its content type
func readFrame(header *multipart.FileHeader) (engine.Frame, error) {
	f, err := header.Open()
	if err != nil {
		return engine.Frame{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return engine.Frame{}, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".webp":
			contentType = "image/webp"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = http.DetectContentType(data)
		}
	}

	return engine.Frame{Data: data, ContentType: strings.ToLower(strings.TrimSpace(contentType))}, nil
}

// handleListScans returns the attempt history
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.orchestrator.ListAttempts()
	if err != nil {
		slog.Error("Error listing attempts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if attempts == nil {
		attempts = []*Attempt{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(attempts); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetScan returns a single attempt
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Attempt ID required", http.StatusBadRequest)
		return
	}
	attempt, err := s.orchestrator.GetAttempt(id)
	if err != nil {
		corsError(w, "Attempt not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(attempt); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
