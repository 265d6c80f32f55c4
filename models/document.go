package models

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file. Immutable after creation; the raw bytes live
// in the blob store under the document id.
type Document struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Path      string    `json:"path" db:"path"`
	Checksum  []byte    `json:"-" db:"checksum"`
	Mime      string    `json:"mime" db:"mime"`
	Size      int32     `json:"size" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates a new Document instance
func NewDocument(orgID uuid.UUID, path, mime string, checksum []byte, size int32) *Document {
	return &Document{
		ID:        uuid.New(),
		OrgID:     orgID,
		Path:      path,
		Checksum:  checksum,
		Mime:      mime,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
}

// ChecksumHex returns the hex encoded checksum
func (d *Document) ChecksumHex() string {
	return hex.EncodeToString(d.Checksum)
}

// Chunk is a piece of a document's text with its embedding.
type Chunk struct {
	ID        uuid.UUID `json:"id" db:"id"`
	DocID     uuid.UUID `json:"doc_id" db:"doc_id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Idx       int32     `json:"idx" db:"idx"`
	Embedding []float32 `json:"-" db:"embedding"`
	Plaintext string    `json:"plaintext" db:"plaintext"`
}

// TableName returns the table name for the Chunk model
func (Chunk) TableName() string {
	return "chunks"
}

// NewChunk creates a chunk belonging to doc
func NewChunk(doc *Document, idx int32, text string, embedding []float32) *Chunk {
	return &Chunk{
		ID:        uuid.New(),
		DocID:     doc.ID,
		OrgID:     doc.OrgID,
		Idx:       idx,
		Embedding: embedding,
		Plaintext: text,
	}
}

// Fragment is a retrieved chunk handed to the model as context. Not persisted.
type Fragment struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// FragmentIDs collects the ids of the given fragments in order.
func FragmentIDs(fragments []Fragment) []uuid.UUID {
	ids := make([]uuid.UUID, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}
	return ids
}

// FragmentTexts collects the texts of the given fragments in order.
func FragmentTexts(fragments []Fragment) []string {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	return texts
}
