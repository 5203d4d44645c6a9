package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/db"
	"github.com/google/uuid"
)

const (
	// Bucket holds uploaded submission assets.
	Bucket = "mix_submissions"

	chunkSize = 256 << 10
)

// OxiDBStorage stores assets in an oxidb blob bucket. Locators point at this
// service's /files route and carry a per-object download token.
type OxiDBStorage struct {
	pool      db.Source
	publicURL string
}

func NewOxiDBStorage(pool db.Source, publicURL string) *OxiDBStorage {
	return &OxiDBStorage{pool: pool, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *OxiDBStorage) EnsureBucket(ctx context.Context) error {
	return s.pool.Get().CreateBucket(ctx, Bucket)
}

func (s *OxiDBStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) *Transfer {
	return Start(ctx, size, func(ctx context.Context, report ReportFunc) (Result, error) {
		var buf bytes.Buffer
		if size > 0 {
			buf.Grow(int(size))
		}
		r := &countingReader{r: body, report: report}
		chunk := make([]byte, chunkSize)
		for {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			n, err := r.Read(chunk)
			buf.Write(chunk[:n])
			if err == io.EOF {
				break
			}
			if err != nil {
				return Result{}, fmt.Errorf("read upload body: %w", err)
			}
		}

		token := uuid.NewString()
		meta := map[string]string{"token": token, "contentType": contentType}
		if _, err := s.pool.Get().PutObject(ctx, Bucket, key, buf.Bytes(), contentType, meta); err != nil {
			return Result{}, fmt.Errorf("put object: %w", err)
		}
		return Result{Key: key, Locator: s.locator(key, token)}, nil
	})
}

func (s *OxiDBStorage) Delete(ctx context.Context, key string) error {
	return s.pool.Get().DeleteObject(ctx, Bucket, key)
}

// Open returns the object stored under key when token matches the one
// issued at upload time.
func (s *OxiDBStorage) Open(ctx context.Context, key, token string) ([]byte, string, error) {
	data, meta, err := s.pool.Get().GetObject(ctx, Bucket, key)
	if err != nil {
		return nil, "", ErrNotFound
	}
	if stored, _ := meta["token"].(string); token == "" || stored != token {
		return nil, "", ErrNotFound
	}
	ct, _ := meta["contentType"].(string)
	if ct == "" {
		ct = "application/octet-stream"
	}
	return data, ct, nil
}

func (s *OxiDBStorage) locator(key, token string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/files/%s?token=%s", s.publicURL, strings.Join(segments, "/"), url.QueryEscape(token))
}
