package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
)

// memoryStore is an in-memory ObjectStore for tests.
type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float64{0.5, 0.5, 0.5}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitForStatus(t *testing.T, repo *repository.GORMRepository, docID string, want ...string) string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := repo.GetDocument(context.Background(), docID)
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		for _, status := range want {
			if doc.Status == status {
				return doc.Status
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("document %s never reached status %v", docID, want)
	return ""
}

func seedPendingDocument(t *testing.T, repo *repository.GORMRepository, store *memoryStore, content string) *models.Document {
	t.Helper()

	user := &models.User{Email: "analyzer@example.com", Password: "hash", Name: "Analyzer"}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	doc := &models.Document{
		UserID:      user.ID,
		Filename:    "notes.txt",
		StoragePath: user.ID + "/notes.txt",
		Status:      models.DocumentPending,
	}
	if err := repo.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	if content != "" {
		store.objects[doc.StoragePath] = []byte(content)
	}
	return doc
}

func TestDocumentAnalyzer_Lifecycle(t *testing.T) {
	repo, _ := setupTestDB(t)
	store := newMemoryStore()
	srv := newEmbeddingServer(t)
	llm := NewLLMClient(srv.URL, "", "embed-model")
	analyzer := NewDocumentAnalyzer(repo, store, llm)

	doc := seedPendingDocument(t, repo, store, "The quick brown fox jumps over the lazy dog.")

	if !analyzer.Start(doc) {
		t.Fatal("expected analysis to start")
	}

	status := waitForStatus(t, repo, doc.ID, models.DocumentCompleted, models.DocumentError)
	if status != models.DocumentCompleted {
		t.Fatalf("expected completed, got %s", status)
	}

	chunks, err := repo.GetCompletedChunks(context.Background())
	if err != nil {
		t.Fatalf("GetCompletedChunks() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "The quick brown fox jumps over the lazy dog." {
		t.Errorf("unexpected chunk content: %q", chunks[0].Content)
	}

	var vec []float64
	if err := json.Unmarshal(chunks[0].Embedding, &vec); err != nil {
		t.Fatalf("failed to decode stored embedding: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected stored embedding of 3 dims, got %d", len(vec))
	}
}

func TestDocumentAnalyzer_MissingObject(t *testing.T) {
	repo, _ := setupTestDB(t)
	store := newMemoryStore()
	srv := newEmbeddingServer(t)
	llm := NewLLMClient(srv.URL, "", "embed-model")
	analyzer := NewDocumentAnalyzer(repo, store, llm)

	// No bytes uploaded for this path
	doc := seedPendingDocument(t, repo, store, "")

	if !analyzer.Start(doc) {
		t.Fatal("expected analysis to start")
	}

	status := waitForStatus(t, repo, doc.ID, models.DocumentCompleted, models.DocumentError)
	if status != models.DocumentError {
		t.Fatalf("expected error status, got %s", status)
	}
}

func TestDocumentAnalyzer_EmbeddingFailure(t *testing.T) {
	repo, _ := setupTestDB(t)
	store := newMemoryStore()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	llm := NewLLMClient(srv.URL, "", "embed-model")
	analyzer := NewDocumentAnalyzer(repo, store, llm)

	doc := seedPendingDocument(t, repo, store, "content that cannot be embedded")

	if !analyzer.Start(doc) {
		t.Fatal("expected analysis to start")
	}

	status := waitForStatus(t, repo, doc.ID, models.DocumentCompleted, models.DocumentError)
	if status != models.DocumentError {
		t.Fatalf("expected error status, got %s", status)
	}

	chunks, err := repo.GetCompletedChunks(context.Background())
	if err != nil {
		t.Fatalf("GetCompletedChunks() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no retrievable chunks after failed analysis, got %d", len(chunks))
	}
}

func TestDocumentAnalyzer_RejectsConcurrentRuns(t *testing.T) {
	repo, _ := setupTestDB(t)
	store := newMemoryStore()

	// Hold the embedding call open so the first run stays in flight
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float64{1}}},
		})
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	llm := NewLLMClient(srv.URL, "", "embed-model")
	analyzer := NewDocumentAnalyzer(repo, store, llm)

	doc := seedPendingDocument(t, repo, store, "slow document")

	if !analyzer.Start(doc) {
		t.Fatal("expected first run to start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !analyzer.IsAnalyzing(doc.ID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if analyzer.Start(doc) {
		t.Error("expected second run to be rejected while the first is in flight")
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    int
	}{
		{"empty", "", 10, 2, 0},
		{"fits one chunk", "short text", 100, 10, 1},
		{"splits with overlap", strings.Repeat("a", 25), 10, 2, 4},
		{"overlap larger than size", strings.Repeat("b", 20), 5, 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkText(tt.text, tt.size, tt.overlap)
			if len(chunks) != tt.want {
				t.Errorf("chunkText() returned %d chunks, expected %d", len(chunks), tt.want)
			}
		})
	}

	t.Run("consecutive chunks share overlap", func(t *testing.T) {
		chunks := chunkText("abcdefghij", 6, 2)
		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
		}
		if chunks[0] != "abcdef" || chunks[1] != "efghij" {
			t.Errorf("unexpected chunk boundaries: %v", chunks)
		}
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a\n\n  b\t c", "a b c"},
		{"strips nul bytes", "a\x00b", "a b"},
		{"trims", "   padded   ", "padded"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.in); got != tt.want {
				t.Errorf("normalizeText(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractText_PlainFile(t *testing.T) {
	text, err := extractText("readme.md", []byte("  plain\ntext  content "))
	if err != nil {
		t.Fatalf("extractText() error = %v", err)
	}
	if text != "plain text content" {
		t.Errorf("expected normalized text, got %q", text)
	}
}
