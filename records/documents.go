package records

import (
	"time"

	"github.com/google/uuid"
)

// Document is the metadata of an uploaded file, stored at
// users/{id}/documents/{docId}. The content lives in object storage.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	URL         string `json:"url"`
	UserID      string `json:"userId"`
	UploadDate  string `json:"uploadDate" validate:"isodate"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	// ObjectKey is the object storage key of the content.
	ObjectKey string `json:"objectKey,omitempty"`
}

// NewDocument returns the metadata of a file uploaded now by the member.
func NewDocument(regID, name string) *Document {
	return &Document{
		ID:         uuid.NewString(),
		Name:       name,
		UserID:     regID,
		UploadDate: time.Now().UTC().Format(time.RFC3339),
	}
}
