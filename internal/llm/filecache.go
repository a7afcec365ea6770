package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"docutalk-backend/pkg/logger"

	"github.com/google/generative-ai-go/genai"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Opener reads stored documents. storage.ObjectStore satisfies it.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Uploader hands a document to the model provider and returns the URI the
// model reads it from.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, mimeType string) (string, error)
}

var _ FileResolver = (*FileCache)(nil)

const uploadTimeout = 5 * time.Minute

// FileCache resolves gs:// URIs to Gemini File API URIs, uploading each
// document once per ttl. The File API keeps uploads for 48h, so ttl must
// stay below that. Without Redis the cache lives in process memory.
type FileCache struct {
	redis    redis.UniversalClient
	opener   Opener
	uploader Uploader
	ttl      time.Duration

	group singleflight.Group
	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	uri     string
	expires time.Time
}

func NewFileCache(rdb redis.UniversalClient, opener Opener, uploader Uploader, ttl time.Duration) *FileCache {
	return &FileCache{
		redis:    rdb,
		opener:   opener,
		uploader: uploader,
		ttl:      ttl,
		local:    make(map[string]localEntry),
	}
}

func cacheKey(uri string) string {
	return "gemini-file:" + uri
}

func (c *FileCache) Resolve(ctx context.Context, uri, mimeType string) (string, error) {
	if cached, ok, err := c.lookup(ctx, uri); err != nil {
		logger.Warn("[FileCache] lookup failed, uploading again", zap.String("uri", uri), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	// The upload is shared by every waiter, so it must outlive the caller
	// that started it.
	ch := c.group.DoChan(uri, func() (any, error) {
		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()
		return c.upload(uploadCtx, uri, mimeType)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *FileCache) lookup(ctx context.Context, uri string) (string, bool, error) {
	if c.redis == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.local[uri]
		if !ok || time.Now().After(e.expires) {
			delete(c.local, uri)
			return "", false, nil
		}
		return e.uri, true, nil
	}
	v, err := c.redis.Get(ctx, cacheKey(uri)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *FileCache) upload(ctx context.Context, uri, mimeType string) (string, error) {
	r, err := c.opener.Open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer r.Close()

	start := time.Now()
	fileURI, err := c.uploader.Upload(ctx, r, mimeType)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", uri, err)
	}
	logger.Info("[FileCache] document uploaded",
		zap.String("uri", uri),
		zap.String("file_uri", fileURI),
		zap.Duration("took", time.Since(start)),
	)

	if c.redis == nil {
		c.mu.Lock()
		c.local[uri] = localEntry{uri: fileURI, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return fileURI, nil
	}
	if err := c.redis.Set(ctx, cacheKey(uri), fileURI, c.ttl).Err(); err != nil {
		logger.Warn("[FileCache] failed to cache file uri", zap.String("uri", uri), zap.Error(err))
	}
	return fileURI, nil
}

// GenaiUploader uploads through the Gemini File API and waits for the file
// to leave the PROCESSING state.
type GenaiUploader struct {
	Client       *genai.Client
	PollInterval time.Duration
}

func (u GenaiUploader) Upload(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	f, err := u.Client.UploadFile(ctx, "", r, &genai.UploadFileOptions{MIMEType: mimeType})
	if err != nil {
		return "", err
	}
	interval := u.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for f.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		if f, err = u.Client.GetFile(ctx, f.Name); err != nil {
			return "", err
		}
	}
	if f.State != genai.FileStateActive {
		return "", fmt.Errorf("file %s ended in state %v", f.Name, f.State)
	}
	return f.URI, nil
}
