// Package storage abstracts the object-storage collaborator that holds
// temporary reference assets between upload and provider acceptance.
package storage

import "context"

// Stored describes one uploaded object: a durable URL the provider can fetch,
// plus a reference usable for later deletion.
type Stored struct {
	URL string `json:"url"`
	Ref string `json:"ref"`
}

// ObjectStore accepts file bytes and returns a durable URL plus a deletable
// reference. Delete is best-effort; callers treat failures as non-fatal.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (*Stored, error)
	Delete(ctx context.Context, ref string) error
}

// extensionFor maps a content type to a file extension for storage keys.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
