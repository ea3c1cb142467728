// Package evidence validates and stores the single file an owner may attach
// to an appeal.
package evidence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"violation-service/internal/apperr"
	"violation-service/internal/models"
)

// MaxSize is the largest accepted evidence file in bytes.
const MaxSize = 5 << 20

var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// File is an uploaded attachment as received from the client.
type File struct {
	Name string
	Data []byte
}

// Store persists evidence blobs. Keys are opaque to callers.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// Validate checks the attachment set and returns the detected content type of
// the single file, or "" when no file was supplied.
func Validate(files []File) (string, error) {
	switch {
	case len(files) == 0:
		return "", nil
	case len(files) > 1:
		return "", apperr.Validation("evidence", "at most one file may be attached, got %d", len(files))
	}
	f := files[0]
	if len(f.Data) == 0 {
		return "", apperr.Validation("evidence", "file %q is empty", f.Name)
	}
	if len(f.Data) > MaxSize {
		return "", apperr.Validation("evidence", "file %q is %d bytes, limit is %d", f.Name, len(f.Data), MaxSize)
	}
	mtype := mimetype.Detect(f.Data)
	if !allowed(mtype) {
		return "", apperr.Validation("evidence", "file type %s is not accepted", mtype.String())
	}
	return mtype.String(), nil
}

func allowed(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
		for _, t := range allowedTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

// Upload validates files and stores the single file, if any, under a key
// scoped to the violation. The returned Evidence is nil when no file was given.
func Upload(ctx context.Context, store Store, violationID string, files []File) (*models.Evidence, error) {
	contentType, err := Validate(files)
	if err != nil || contentType == "" {
		return nil, err
	}
	f := files[0]
	key := fmt.Sprintf("contests/%s/%s%s", violationID, uuid.NewString(), strings.ToLower(filepath.Ext(f.Name)))
	url, err := store.Put(ctx, key, f.Data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store evidence: %w", err)
	}
	return &models.Evidence{
		Key:         key,
		URL:         url,
		FileName:    filepath.Base(f.Name),
		ContentType: contentType,
		Size:        int64(len(f.Data)),
	}, nil
}
