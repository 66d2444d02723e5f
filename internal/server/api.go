// ABOUTME: JSON helpers, health, upload, admin, and unit conversion handlers
// ABOUTME: Maps application error kinds to HTTP status codes at the boundary

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/showcase-backend/internal/apperr"
	"github.com/2389/showcase-backend/internal/relay"
	"github.com/2389/showcase-backend/internal/units"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	StorageConnected  bool   `json:"storage_connected"`
	// DatabaseConnected reports the local product/persona store.
	DatabaseConnected bool   `json:"database_connected"`
	Timestamp         string `json:"timestamp"`
}

// UploadResponse is the body of POST /upload.
type UploadResponse struct {
	BlobID   string `json:"blob_id"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	URL      string `json:"url"`
}

// ValidateFIDResponse is the body of GET /utils/validate-fid/{fid}.
type ValidateFIDResponse struct {
	FID         string `json:"fid"`
	ValidFormat bool   `json:"valid_format"`
	Format      string `json:"format"`
	Exists      bool   `json:"exists"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError sends a JSON error response with the given status code.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendError maps err to its status code. The message is echoed to the
// caller, including for 500s.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	s.sendErrorStatus(w, r, apperr.HTTPStatus(err), err)
}

func (s *Server) sendErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"kind", apperr.KindOf(err).String(),
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	sendJSONError(w, status, err.Error())
}

// maxJSONBodyBytes caps JSON request bodies.
const maxJSONBodyBytes = 1 << 20

// decodeJSON decodes the bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Newf(apperr.KindValidation, "", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.New(apperr.KindValidation, "", fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

// parseMultipart bounds the body and parses a multipart form.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Newf(apperr.KindValidation, "", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.New(apperr.KindValidation, "", fmt.Errorf("invalid multipart form: %w", err))
	}
	return nil
}

func readPart(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// handleHealth reports liveness, whether the gateway answers, and whether
// the local store is usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbErr := s.persister.Ping(r.Context())
	if dbErr != nil {
		s.logger.Warn("store ping failed", "error", dbErr)
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		StorageConnected:  s.relay.Reachable(r.Context()),
		DatabaseConnected: dbErr == nil,
		Timestamp:         s.now().UTC().Format(time.RFC3339),
	})
}

// handleUpload relays a single multipart file to the gateway.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.sendError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		sendJSONError(w, http.StatusBadRequest, "file is required")
		return
	}
	fh := files[0]
	data, contentType, err := readPart(fh)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	fid, err := s.relay.Upload(r.Context(), data, fh.Filename, contentType)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		BlobID:   fid,
		Filename: fh.Filename,
		Size:     len(data),
		URL:      s.relay.URL(fid),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Stats(r.Context()))
}

// handleCleanup removes products missing a name, price or seller.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.catalog.Cleanup(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleEthToWei(w http.ResponseWriter, r *http.Request) {
	eth, err := units.ParseDisplay(chi.URLParam(r, "amount"))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	wei, err := units.ToFixed18(eth)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eth": eth, "wei": wei.String()})
}

func (s *Server) handleWeiToEth(w http.ResponseWriter, r *http.Request) {
	wei, err := units.ParseFixed(chi.URLParam(r, "amount"))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wei": wei.String(), "eth": units.FromFixed18(wei)})
}

// handleValidateFID checks the identifier's shape and, when it looks
// valid, whether the gateway has it.
func (s *Server) handleValidateFID(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "fid")
	format := relay.ValidateFID(fid)
	resp := ValidateFIDResponse{
		FID:         fid,
		ValidFormat: format != "",
		Format:      format,
	}
	if resp.ValidFormat {
		resp.Exists = s.relay.Exists(r.Context(), fid)
	}
	writeJSON(w, http.StatusOK, resp)
}
