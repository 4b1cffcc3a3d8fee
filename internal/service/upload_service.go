package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/pkg/config"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

type uploadStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// UploadedFile describes a stored document and its signed download link.
type UploadedFile struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadService stores applicant documents (transcripts, essays, letters)
// and hands out signed, expiring download links.
type UploadService struct {
	store  uploadStorage
	signer *storage.SignedURLSigner
	cfg    config.UploadsConfig
	logger *zap.Logger
}

// NewUploadService constructs UploadService.
func NewUploadService(store uploadStorage, signer *storage.SignedURLSigner, cfg config.UploadsConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 << 20
	}
	return &UploadService{store: store, signer: signer, cfg: cfg, logger: logger}
}

// Save validates and persists one uploaded document.
func (s *UploadService) Save(filename, contentType string, size int64, r io.Reader) (*UploadedFile, error) {
	if size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSizeBytes))
	}
	if !s.allowedMIME(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unsupported content type %q", contentType))
	}

	id := uuid.NewString()
	stored := fmt.Sprintf("%s%s", id, strings.ToLower(filepath.Ext(filename)))
	relPath, err := s.store.SaveStream(stored, io.LimitReader(r, s.cfg.MaxFileSizeBytes))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &UploadedFile{
		ID:        id,
		Filename:  filename,
		URL:       fmt.Sprintf("/api/v1/files/%s", token),
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a signed token and opens the stored file.
func (s *UploadService) Resolve(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired file token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return file, nil
}

func (s *UploadService) allowedMIME(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if contentType == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
