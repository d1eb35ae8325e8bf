package content

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// Document is the structured content unit the translation pipeline operates
// on. The pipeline only ever holds document IDs inside jobs; content is
// re-read from the store at processing time.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Excerpt string `json:"excerpt"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// Metadata keys linking documents of one translation group together.
const (
	MetaGroupID    = "translation_group_id"
	MetaLanguage   = "language"
	MetaSourceLang = "source_language"
	MetaOriginalID = "original_document_id"
	MetaIsOriginal = "is_original"
	MetaStatus     = "translation_status"
)

// Store is the document storage collaborator. GetMeta returns an empty
// string for unset keys.
type Store interface {
	Get(ctx context.Context, id string) (*Document, error)
	Create(ctx context.Context, doc *Document) (string, error)
	Update(ctx context.Context, doc *Document) error
	GetMeta(ctx context.Context, id, key string) (string, error)
	SetMeta(ctx context.Context, id, key, value string) error
	// ListIDsByMeta returns the IDs of all documents carrying the given
	// metadata key/value pair.
	ListIDsByMeta(ctx context.Context, key, value string) ([]string, error)
}
