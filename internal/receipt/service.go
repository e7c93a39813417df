package receipt

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-ocr/internal/parsing"
	"github.com/zombor/receipt-ocr/internal/scanning"
)

var (
	// ErrUnsupportedContentType is returned for uploads that are neither images nor PDFs
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrRecognitionFailed wraps failures reported by an OCR engine
	ErrRecognitionFailed = errors.New("recognition failed")
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.New().String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	registry    *scanning.Registry
	parser      *parsing.Parser
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID IDs and the wall clock
func NewService(db DB, registry *scanning.Registry, storage Storage) *Service {
	return NewServiceWithDeps(db, registry, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, registry *scanning.Registry, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		registry:    registry,
		parser:      parsing.NewParser(),
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters from the base name and caps its length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean("/" + filename))
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	const maxLen = 50
	if runes := []rune(base); len(runes) > maxLen {
		base = string(runes[:maxLen])
	}
	if base == "" {
		base = "receipt"
	}
	return base + strings.ToLower(ext)
}

// supportedContentType reports whether uploads of this type can be recognized
func supportedContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/pdf"
}

// ProcessReceipt stores an upload, recognizes its text with the named engine
// (the default when engine is empty), parses it and saves the record.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType, engine string) (*Receipt, error) {
	if !supportedContentType(contentType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	used, fragments, err := s.registry.Recognize(ctx, engine, data, contentType)
	if err != nil {
		slog.Error("Failed to recognize receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"engine", used,
			"error", err,
		)
		s.removeFile(savedPath)
		if errors.Is(err, scanning.ErrUnknownEngine) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}

	receipt := &Receipt{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Engine:      used,
		Data:        s.parser.Parse(fragments),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("Processed receipt",
		"id", id,
		"engine", used,
		"fragments", len(fragments),
		"items", len(receipt.Data.Items),
	)
	return receipt, nil
}

func (s *Service) removeFile(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete file", "filename", name, "error", err)
	}
}

// ParseFragments parses already recognized text without storing anything
func (s *Service) ParseFragments(fragments []parsing.Fragment) parsing.ParsedReceipt {
	return s.parser.Parse(fragments)
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	slices.SortStableFunc(receipts, func(a, b *Receipt) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	s.removeFile(receipt.Filename)

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// Engines describes every registered engine, keyed by name
func (s *Service) Engines() map[string]scanning.EngineInfo {
	names := s.registry.Names()
	info := make(map[string]scanning.EngineInfo, len(names))
	for _, name := range names {
		if i, err := s.registry.Info(name); err == nil {
			info[name] = i
		}
	}
	return info
}

// EngineNames lists the registered engines in registration order
func (s *Service) EngineNames() []string {
	return s.registry.Names()
}

// DefaultEngine names the engine used when a request does not pick one
func (s *Service) DefaultEngine() string {
	return s.registry.Default()
}
