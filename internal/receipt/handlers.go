package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-ocr/internal/parsing"
	"github.com/zombor/receipt-ocr/internal/scanning"
)

const (
	// 50MB handles high-resolution phone photos
	maxUploadSize = int64(50 << 20)

	maxFragmentsSize = int64(5 << 20)
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an {"error": message} response
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// requestedColumns collects ?columns= values, accepting both repeated
// parameters and comma separated lists
func requestedColumns(r *http.Request) []string {
	var columns []string
	for _, value := range r.URL.Query()["columns"] {
		for _, col := range strings.Split(value, ",") {
			if col = strings.TrimSpace(col); col != "" {
				columns = append(columns, col)
			}
		}
	}
	return columns
}

// detectContentType falls back to the file extension when the part has no Content-Type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// receiptEnvelope builds the response body shared by the OCR endpoints
func receiptEnvelope(fields map[string]any, available []string, data parsing.ParsedReceipt, columns []string) map[string]any {
	items := data.Items
	if items == nil {
		items = []parsing.LineItem{}
	}
	return map[string]any{
		"success":           true,
		"data":              items,
		"available_columns": available,
		"confidence":        data.Confidence,
		"full_data":         parsing.FilterColumns(fields, columns),
	}
}

// handleRoot reports that the service is up
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Receipt OCR service ready"})
}

// handleProcessReceipt uploads, recognizes and parses a receipt
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)
	engine := r.URL.Query().Get("engine")
	columns := requestedColumns(r)

	slog.Info("Processing receipt",
		"filename", header.Filename,
		"content_type", contentType,
		"engine", engine,
		"columns", columns,
	)

	receipt, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, contentType, engine)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		switch {
		case errors.Is(err, ErrUnsupportedContentType):
			jsonError(w, "Please upload an image or PDF file", http.StatusBadRequest)
		case errors.Is(err, scanning.ErrUnknownEngine):
			jsonError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrRecognitionFailed):
			jsonError(w, err.Error(), http.StatusBadGateway)
		default:
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	body := receiptEnvelope(receipt.Fields(), Columns, receipt.Data, columns)
	body["id"] = receipt.ID
	body["engine_used"] = receipt.Engine
	writeJSON(w, http.StatusCreated, body)
}

// handleParseFragments parses fragments recognized elsewhere
func (s *Server) handleParseFragments(w http.ResponseWriter, r *http.Request) {
	fragments, err := parsing.DecodeFragments(http.MaxBytesReader(w, r.Body, maxFragmentsSize))
	if err != nil {
		slog.Error("Error decoding fragments", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := s.service.ParseFragments(fragments)
	writeJSON(w, http.StatusOK, receiptEnvelope(data.Fields(), parsing.Columns, data, requestedColumns(r)))
}

// handleListEngines describes the registered OCR engines
func (s *Server) handleListEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available_engines": s.service.EngineNames(),
		"engines_info":      s.service.Engines(),
		"default_engine":    s.service.DefaultEngine(),
	})
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// receiptError maps lookup failures to 404 and everything else to 500
func receiptError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, ErrReceiptNotFound) {
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	slog.Error("Error loading receipt", "id", id, "error", err)
	jsonError(w, "Internal server error", http.StatusInternalServerError)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	receipt, err := s.service.GetReceipt(id)
	if err != nil {
		receiptError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the stored upload for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetReceiptFile(id)
	if err != nil {
		receiptError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteReceipt(id); err != nil {
		receiptError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
