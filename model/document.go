package model

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the raw input format handed to the parser.
type DocumentType string

const (
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeText     DocumentType = "text"
	DocumentTypeJSON     DocumentType = "json"
	DocumentTypeJSONL    DocumentType = "jsonl"
)

// Document represents a source document ingested into the memory.
type Document struct {
	ID          int64     `json:"id"`
	RID         uuid.UUID `json:"rid"`
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Content     string    `json:"content,omitempty" db:"-"` // cleaned text, not stored verbatim
	ContentHash string    `json:"content_hash"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Section is one node of a document's heading forest. Belongs to exactly
// one document; level is strictly greater than its parent's.
type Section struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	Heading    string    `json:"heading"`
	Level      int       `json:"level"` // 1-6
	StartPos   int       `json:"start_pos"`
	EndPos     int       `json:"end_pos"`
	Children   []*Section `json:"children,omitempty"`
}

// ContentHash returns the SHA-256 hex digest of normalized text, used for
// duplicate-ingest detection.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// NormalizeText trims surrounding whitespace and collapses internal
// whitespace runs, the normalization the content hash is computed over.
func NormalizeText(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

// NewDocumentFromFile reads a file and creates a Document with the file
// content as its source text. Title defaults to the filename, source to
// the file path.
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	normalized := NormalizeText(string(content))

	return &Document{
		Title:       title,
		Source:      filePath,
		Content:     string(content),
		ContentHash: ContentHash(normalized),
		Metadata:    metadata,
	}, nil
}
