// Package blob stores media uploads in object storage. The core keeps only
// the returned URL.
package blob

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeProfile Purpose = "profile"
	PurposeChat    Purpose = "chat"
)

func (p Purpose) Valid() bool { return p == PurposeProfile || p == PurposeChat }

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Store accepts a validated upload and returns its public URL.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string, purpose Purpose) (string, error)
}

// Validate checks size, content type and purpose before anything is stored.
func Validate(size int, contentType string, purpose Purpose) error {
	if size == 0 {
		return common.Validation("empty upload")
	}
	if size > common.MaxMediaBytes {
		return common.Validation("upload of %d bytes exceeds the %d byte limit", size, common.MaxMediaBytes)
	}
	if _, ok := extensions[contentType]; !ok {
		return common.Validation("content type %q is not allowed", contentType)
	}
	if !purpose.Valid() {
		return common.Validation("unknown upload purpose %q", purpose)
	}
	return nil
}

// objectKey returns purpose/<uuid>.<ext>.
func objectKey(contentType string, purpose Purpose) string {
	return fmt.Sprintf("%s/%s.%s", purpose, uuid.NewString(), extensions[contentType])
}
