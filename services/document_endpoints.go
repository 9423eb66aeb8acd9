package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
	"github.com/hyeonsu/sagebook/backend/storage"
)

type DocumentEndpoints struct {
	repo          *repository.GORMRepository
	store         storage.ObjectStore
	analyzer      *DocumentAnalyzer
	maxUploadSize int64
}

func NewDocumentEndpoints(repo *repository.GORMRepository, store storage.ObjectStore, analyzer *DocumentAnalyzer, maxUploadSize int64) *DocumentEndpoints {
	return &DocumentEndpoints{
		repo:          repo,
		store:         store,
		analyzer:      analyzer,
		maxUploadSize: maxUploadSize,
	}
}

func (e *DocumentEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", e.ListDocumentsHandler)
		r.Post("/upload", e.UploadDocumentHandler)
		r.Delete("/{id}", e.DeleteDocumentHandler)
		r.Post("/{id}/analyze", e.AnalyzeDocumentHandler)
	})
}

func (e *DocumentEndpoints) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("user").(*models.User); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := e.repo.GetDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

// UploadDocumentHandler stores the file bytes in object storage and records a
// pending document. The storage key is an opaque uuid path so non-ASCII
// filenames never become object keys.
func (e *DocumentEndpoints) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, e.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	storagePath := fmt.Sprintf("%s/%d_%s%s",
		user.ID, time.Now().Unix(), uuid.New().String(), filepath.Ext(header.Filename))

	contentType := header.Header.Get("Content-Type")
	if err := e.store.Put(r.Context(), storagePath, file, header.Size, contentType); err != nil {
		slog.Error("Storage upload failed", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	doc := &models.Document{
		UserID:      user.ID,
		Filename:    header.Filename,
		StoragePath: storagePath,
		Status:      models.DocumentPending,
	}
	if err := e.repo.CreateDocument(r.Context(), doc); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	slog.Info("Document uploaded", "document_id", doc.ID, "filename", doc.Filename, "user_id", user.ID)
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocumentHandler removes chunks, the stored object and the record.
// A missing storage object is logged and deletion continues so a stale
// record can always be cleared.
func (e *DocumentEndpoints) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("user").(*models.User); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docID := chi.URLParam(r, "id")
	doc, err := e.repo.GetDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}

	if err := e.store.Delete(r.Context(), doc.StoragePath); err != nil {
		slog.Warn("Storage delete failed, continuing", "error", err, "document_id", doc.ID)
	}

	if err := e.repo.DeleteDocument(r.Context(), doc.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": doc.ID})
}

// AnalyzeDocumentHandler triggers the background analysis job. Triggering an
// in-flight analysis is answered without starting a second run.
func (e *DocumentEndpoints) AnalyzeDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("user").(*models.User); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docID := chi.URLParam(r, "id")
	doc, err := e.repo.GetDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}

	if doc.Status == models.DocumentAnalyzing || !e.analyzer.Start(doc) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Document is already being analyzed",
			"status":  models.DocumentAnalyzing,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Analysis started",
		"status":  models.DocumentAnalyzing,
	})
}
