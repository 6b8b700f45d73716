package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

const (
	maxFormSize = int64(50 << 20) // 50MB, phone photos of several bills
	xlsxType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// failureResponse is the JSON shape of a failed bill
type failureResponse struct {
	Filename string      `json:"filename"`
	Kind     FailureKind `json:"kind"`
	Error    string      `json:"error"`
	Raw      string      `json:"raw,omitempty"`
}

// batchResponse is the JSON answer to a batch upload
type batchResponse struct {
	ID        string            `json:"id,omitempty"`
	Submitted int               `json:"submitted"`
	Extracted int               `json:"extracted"`
	Records   []Record          `json:"records"`
	Failures  []failureResponse `json:"failures"`
	Totals    Totals            `json:"totals"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes an error message as JSON
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleCreateReport runs a batch over the uploaded bill images
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	uploadDir, err := os.MkdirTemp(s.config.UploadDir, "bill-uploads-*")
	if err != nil {
		slog.Error("Error creating upload directory", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(uploadDir)

	paths, err := stageUploads(r, uploadDir)
	if err != nil {
		slog.Error("Error staging uploads", "error", err)
		jsonError(w, "Error reading uploaded files", http.StatusInternalServerError)
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = s.config.APIKey
	}

	result, err := s.service.Run(r.Context(), paths, apiKey)
	switch {
	case errors.Is(err, ErrNoFiles):
		jsonError(w, "No bill images uploaded", http.StatusBadRequest)
		return
	case errors.Is(err, ErrMissingCredentials):
		jsonError(w, "API key required", http.StatusUnauthorized)
		return
	case err != nil:
		slog.Error("Error processing bills", "error", err)
		jsonError(w, "Error processing bills", http.StatusInternalServerError)
		return
	}

	resp := batchResponse{
		Submitted: result.Submitted,
		Extracted: result.Extracted(),
		Records:   result.Records,
		Failures:  make([]failureResponse, 0),
		Totals:    result.Totals,
	}
	for _, f := range result.Failures() {
		resp.Failures = append(resp.Failures, failureResponse{
			Filename: f.Filename,
			Kind:     f.Kind,
			Error:    f.Message(),
			Raw:      f.Raw,
		})
	}

	if result.Extracted() > 0 {
		path, err := WriteReport(result, s.config.ReportDir)
		if err != nil {
			slog.Error("Error creating report", "error", err)
			jsonError(w, "Error creating report", http.StatusInternalServerError)
			return
		}
		entry, err := s.registry.Track(path, result)
		if err != nil {
			os.Remove(path)
			slog.Error("Error tracking report", "error", err)
			jsonError(w, "Error creating report", http.StatusInternalServerError)
			return
		}
		resp.ID = entry.ID
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// stageUploads saves every "files" part into its own directory under dir and
// returns the paths in upload order. Separate directories keep duplicate names apart.
func stageUploads(r *http.Request, dir string) ([]string, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File["files"]
	paths := make([]string, 0, len(headers))
	for i, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		store, err := NewLocalStorage(filepath.Join(dir, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		path, err := store.Save(uploadName(header.Filename, i), data)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// uploadName returns the base name of an uploaded file, or upload-<i> when the
// client sent a name that does not name a file
func uploadName(filename string, i int) string {
	name := filepath.Base(filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "upload-" + strconv.Itoa(i)
	}
	return name
}

// handleListReports returns every tracked report
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.List()
	if err != nil {
		slog.Error("Error listing reports", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetReport downloads a report workbook
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.registry.Get(id)
	if err != nil {
		jsonError(w, "Report not found", http.StatusNotFound)
		return
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		slog.Error("Error reading report", "id", id, "path", entry.Path, "error", err)
		jsonError(w, "Report file not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="bill-report.xlsx"`)
	w.Write(data)
}

// handleDeleteReport removes a report and its file
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Remove(id); err != nil {
		if errors.Is(err, ErrReportNotFound) {
			jsonError(w, "Report not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting report", "id", id, "error", err)
		jsonError(w, "Error deleting report", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
