package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/metrics"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/pdf"
	"docutalk-backend/internal/storage"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooManyDocuments  = errors.New("too many documents for one chatbot")
	ErrTooManyPages      = errors.New("too many pages for one chatbot")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrDuplicateDocument = errors.New("a document with this filename already exists")
	ErrDocumentNotFound  = errors.New("document not found")
)

const (
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
)

// UploadedFile is one file of a multipart upload.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// checkedFile is an UploadedFile that passed validation.
type checkedFile struct {
	UploadedFile
	MimeType string
	Pages    int
}

// checkLimits validates files against the chatbot limits, counting the
// documents the chatbot already has.
func checkLimits(limits config.LimitsConfig, existing []models.Document, files []checkedFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: at least one document is required", ErrValidation)
	}
	if len(existing)+len(files) > limits.MaxDocsPerChatbot {
		return fmt.Errorf("%w: at most %d documents", ErrTooManyDocuments, limits.MaxDocsPerChatbot)
	}

	names := make(map[string]bool, len(existing)+len(files))
	pages := 0
	for _, d := range existing {
		names[d.Filename] = true
		pages += d.NbPages
	}
	for _, f := range files {
		if names[f.Filename] {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, f.Filename)
		}
		names[f.Filename] = true
		pages += f.Pages
	}
	if pages > limits.MaxPagesPerChatbot {
		return fmt.Errorf("%w: %d pages, at most %d", ErrTooManyPages, pages, limits.MaxPagesPerChatbot)
	}
	return nil
}

// checkPDFs counts the pages of every upload.
func checkPDFs(files []UploadedFile) ([]checkedFile, error) {
	out := make([]checkedFile, 0, len(files))
	for _, f := range files {
		f.Filename = filepath.Base(strings.TrimSpace(f.Filename))
		if f.Filename == "" || f.Filename == "." {
			return nil, fmt.Errorf("%w: missing filename", ErrInvalidDocument)
		}
		n, err := pdf.PageCount(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, f.Filename, err)
		}
		out = append(out, checkedFile{UploadedFile: f, MimeType: mimePDF, Pages: n})
	}
	return out, nil
}

// saveFiles uploads files below the chatbot directory.
func saveFiles(ctx context.Context, objects storage.ObjectStore, chatbotID, createdBy uuid.UUID, files []checkedFile) ([]store.CreateDocumentParams, error) {
	params := make([]store.CreateDocumentParams, 0, len(files))
	for _, f := range files {
		id := uuid.New()
		path := storage.DocumentPath(chatbotID.String(), id.String(), filepath.Ext(f.Filename))
		uri, publicPath, err := objects.Save(ctx, path, f.Data, f.MimeType)
		if err != nil {
			return params, fmt.Errorf("uploading %s: %w", f.Filename, err)
		}
		metrics.DocumentsUploaded.Inc()
		params = append(params, store.CreateDocumentParams{
			ID:         id,
			ChatbotID:  chatbotID,
			CreatedBy:  createdBy,
			Filename:   f.Filename,
			MimeType:   f.MimeType,
			URI:        uri,
			PublicPath: publicPath,
			NbPages:    f.Pages,
		})
	}
	return params, nil
}

func newDocumentResponse(d models.Document) models.DocumentResponse {
	return models.DocumentResponse{
		ID:        d.ID,
		Filename:  d.Filename,
		MimeType:  d.MimeType,
		NbPages:   d.NbPages,
		CreatedAt: d.CreatedAt,
	}
}

type DocumentService struct {
	store       store.Store
	objects     storage.ObjectStore
	credentials CredentialsService
	registry    *integrations.Registry
	limits      config.LimitsConfig
}

func NewDocumentService(s store.Store, objects storage.ObjectStore, creds CredentialsService, reg *integrations.Registry, cfg *config.Config) *DocumentService {
	return &DocumentService{
		store:       s,
		objects:     objects,
		credentials: creds,
		registry:    reg,
		limits:      cfg.Limits,
	}
}

func (s *DocumentService) List(ctx context.Context, caller Caller, chatbotID uuid.UUID) ([]models.DocumentResponse, error) {
	if _, _, err := resolveRole(ctx, s.store, chatbotID, caller.Email); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	resp := make([]models.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, newDocumentResponse(d))
	}
	return resp, nil
}

// Upload adds PDF documents to an existing chatbot.
func (s *DocumentService) Upload(ctx context.Context, caller Caller, chatbotID uuid.UUID, files []UploadedFile) ([]models.DocumentResponse, error) {
	if _, err := requireAdmin(ctx, s.store, chatbotID, caller.Email); err != nil {
		return nil, err
	}
	checked, err := checkPDFs(files)
	if err != nil {
		return nil, err
	}
	return s.add(ctx, caller, chatbotID, checked)
}

func (s *DocumentService) add(ctx context.Context, caller Caller, chatbotID uuid.UUID, files []checkedFile) ([]models.DocumentResponse, error) {
	existing, err := s.store.ListDocuments(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if err := checkLimits(s.limits, existing, files); err != nil {
		return nil, err
	}

	params, err := saveFiles(ctx, s.objects, chatbotID, caller.UserID, files)
	if err != nil {
		s.removeObjects(ctx, params)
		return nil, err
	}

	resp := make([]models.DocumentResponse, 0, len(params))
	for _, p := range params {
		d, err := s.store.CreateDocument(ctx, p)
		if err != nil {
			// The upload is all or nothing.
			s.removeRows(ctx, resp)
			s.removeObjects(ctx, params)
			if errors.Is(err, store.ErrConflict) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, p.Filename)
			}
			return nil, fmt.Errorf("failed to save document %s: %w", p.Filename, err)
		}
		resp = append(resp, newDocumentResponse(*d))
	}
	logger.Info("[DocumentService] documents added",
		zap.String("chatbot_id", chatbotID.String()),
		zap.Int("count", len(resp)),
	)
	return resp, nil
}

func (s *DocumentService) removeRows(ctx context.Context, docs []models.DocumentResponse) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range docs {
		if err := s.store.DeleteDocument(ctx, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn("[DocumentService] cleanup of document row failed", zap.String("document_id", d.ID.String()), zap.Error(err))
		}
	}
}

func (s *DocumentService) removeObjects(ctx context.Context, params []store.CreateDocumentParams) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range params {
		if err := s.objects.Delete(ctx, p.URI); err != nil {
			logger.Warn("[DocumentService] cleanup of uploaded object failed", zap.String("uri", p.URI), zap.Error(err))
		}
	}
}

// Delete removes the stored object and the row of filename.
func (s *DocumentService) Delete(ctx context.Context, caller Caller, chatbotID uuid.UUID, filename string) error {
	if _, err := requireAdmin(ctx, s.store, chatbotID, caller.Email); err != nil {
		return err
	}
	doc, err := s.store.GetDocumentByFilename(ctx, chatbotID, filename)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("failed to get document: %w", err)
	}
	if err := s.objects.Delete(ctx, doc.URI); err != nil {
		return fmt.Errorf("failed to delete stored document: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	logger.Info("[DocumentService] document deleted",
		zap.String("chatbot_id", chatbotID.String()),
		zap.String("document_id", doc.ID.String()),
	)
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\pL\pN _.-]+`)

// ImportNotionPage stores a Notion page as a text document of the chatbot.
func (s *DocumentService) ImportNotionPage(ctx context.Context, caller Caller, chatbotID uuid.UUID, req models.ImportNotionPageRequest) (*models.DocumentResponse, error) {
	if _, err := requireAdmin(ctx, s.store, chatbotID, caller.Email); err != nil {
		return nil, err
	}
	if req.CredentialID == uuid.Nil || strings.TrimSpace(req.PageID) == "" {
		return nil, fmt.Errorf("%w: credential_id and page_id are required", ErrValidation)
	}

	serviceType, creds, err := s.credentials.Decrypt(ctx, req.CredentialID, caller.UserID)
	if err != nil {
		return nil, err
	}
	importer, err := s.registry.Importer(serviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	page, err := importer.ImportPage(ctx, creds, req.PageID)
	if err != nil {
		if errors.Is(err, integrations.ErrInvalidPageID) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if page.Text == "" {
		return nil, fmt.Errorf("%w: the page has no text", ErrInvalidDocument)
	}

	name := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(page.Title, " "))
	if name == "" {
		name = page.PageID
	}
	text := "# " + page.Title + "\n\n" + page.Text
	docs, err := s.add(ctx, caller, chatbotID, []checkedFile{{
		UploadedFile: UploadedFile{Filename: name + ".txt", Data: []byte(text)},
		MimeType:     mimeText,
		Pages:        pdf.TextPageCount(text),
	}})
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}
