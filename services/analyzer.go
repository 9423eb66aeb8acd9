package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
	"github.com/hyeonsu/sagebook/backend/storage"
	"github.com/ledongthuc/pdf"
	"gorm.io/datatypes"
)

const (
	ChunkSize    = 1500
	ChunkOverlap = 100

	// AnalysisTimeout bounds one full analysis run including per-chunk
	// embedding calls
	AnalysisTimeout = 10 * time.Minute
)

// DocumentAnalyzer turns an uploaded file into embedded retrieval chunks in
// the background: pending -> analyzing -> completed, or error on any failure.
type DocumentAnalyzer struct {
	repo  *repository.GORMRepository
	store storage.ObjectStore
	llm   *LLMClient

	// Guards against concurrent analysis of the same document
	active map[string]struct{}
	mutex  sync.Mutex
}

func NewDocumentAnalyzer(repo *repository.GORMRepository, store storage.ObjectStore, llm *LLMClient) *DocumentAnalyzer {
	return &DocumentAnalyzer{
		repo:   repo,
		store:  store,
		llm:    llm,
		active: make(map[string]struct{}),
	}
}

// IsAnalyzing reports whether an analysis run for the document is in flight
func (a *DocumentAnalyzer) IsAnalyzing(docID string) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	_, running := a.active[docID]
	return running
}

// Start launches a background analysis run for the document. Returns false
// when a run is already in flight.
func (a *DocumentAnalyzer) Start(doc *models.Document) bool {
	a.mutex.Lock()
	if _, running := a.active[doc.ID]; running {
		a.mutex.Unlock()
		return false
	}
	a.active[doc.ID] = struct{}{}
	a.mutex.Unlock()

	go func() {
		defer func() {
			a.mutex.Lock()
			delete(a.active, doc.ID)
			a.mutex.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), AnalysisTimeout)
		defer cancel()

		if err := a.analyze(ctx, doc); err != nil {
			slog.Error("Document analysis failed", "error", err, "document_id", doc.ID, "filename", doc.Filename)
			if statusErr := a.repo.SetDocumentStatus(context.Background(), doc.ID, models.DocumentError); statusErr != nil {
				slog.Error("Failed to mark document errored", "error", statusErr, "document_id", doc.ID)
			}
			return
		}

		slog.Info("Document analysis completed", "document_id", doc.ID, "filename", doc.Filename)
	}()

	return true
}

func (a *DocumentAnalyzer) analyze(ctx context.Context, doc *models.Document) error {
	if err := a.repo.SetDocumentStatus(ctx, doc.ID, models.DocumentAnalyzing); err != nil {
		return fmt.Errorf("failed to mark document analyzing: %w", err)
	}

	obj, err := a.store.Get(ctx, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to download document: %w", err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	text, err := extractText(doc.Filename, raw)
	if err != nil {
		return err
	}

	parts := chunkText(text, ChunkSize, ChunkOverlap)
	if len(parts) == 0 {
		return fmt.Errorf("no content extracted from document")
	}
	slog.Info("Document split into chunks", "document_id", doc.ID, "count", len(parts))

	chunks := make([]models.DocumentChunk, 0, len(parts))
	for i, part := range parts {
		vec, err := a.llm.Embed(ctx, part)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		encoded, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		chunks = append(chunks, models.DocumentChunk{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			Seq:        i,
			Content:    part,
			Embedding:  datatypes.JSON(encoded),
		})
	}

	if err := a.repo.ReplaceDocumentChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	if err := a.repo.SetDocumentStatus(ctx, doc.ID, models.DocumentCompleted); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}
	return nil
}

// extractText pulls plain text out of the uploaded bytes. PDFs go through the
// PDF parser page by page; anything else is treated as UTF-8 text.
func extractText(filename string, raw []byte) (string, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return normalizeText(string(raw)), nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := normalizeText(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return text, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
