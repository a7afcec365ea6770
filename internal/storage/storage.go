package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrInvalidURI is returned for URIs that are not gs://bucket/object.
var ErrInvalidURI = errors.New("invalid object URI")

// ObjectStore keeps uploaded documents. URIs have the form gs://{bucket}/{path}.
type ObjectStore interface {
	// Save writes data under path and returns its gs:// URI and its console URL.
	Save(ctx context.Context, path string, data []byte, contentType string) (uri, publicPath string, err error)
	SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Delete(ctx context.Context, uri string) error
	// DeletePrefix removes every object below dir.
	DeletePrefix(ctx context.Context, dir string) error
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

func URI(bucket, path string) string {
	return "gs://" + bucket + "/" + path
}

func PublicPath(bucket, path string) string {
	return "https://storage.cloud.google.com/" + bucket + "/" + path
}

// ChatbotDir is the storage directory of a chatbot's documents.
func ChatbotDir(chatbotID string) string {
	return "docu-talk/chatbots/" + chatbotID
}

// DocumentPath is where a document of a chatbot is stored. ext keeps its dot.
func DocumentPath(chatbotID, documentID, ext string) string {
	return ChatbotDir(chatbotID) + "/" + documentID + ext
}
