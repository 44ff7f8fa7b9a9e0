package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/ratelimit"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// ObjectStore 以写一次语义将媒体写入 GCS：对象已存在时不覆盖，直接返回其属性。
type ObjectStore struct {
	client  *storage.Client
	bucket  string
	limiter *rate.Limiter
	log     *log.Helper
}

// NewObjectStore 构造 ObjectStore；limiter 可为 nil。
func NewObjectStore(client *storage.Client, bucket string, limiter *rate.Limiter, logger log.Logger) (*ObjectStore, error) {
	switch {
	case client == nil:
		return nil, errors.New("gcs object store: client is required")
	case bucket == "":
		return nil, errors.New("gcs object store: bucket is required")
	}
	return &ObjectStore{
		client:  client,
		bucket:  bucket,
		limiter: limiter,
		log:     log.NewHelper(logger),
	}, nil
}

// Put 写入对象；前置条件 DoesNotExist 失败（412）视为此前已写入成功。
func (s *ObjectStore) Put(ctx context.Context, objectPath, contentType string, data []byte) (*services.StoredObject, error) {
	if objectPath == "" {
		return nil, errors.New("object path is required")
	}
	if err := ratelimit.Wait(ctx, s.limiter); err != nil {
		return nil, err
	}

	obj := s.client.Bucket(s.bucket).Object(objectPath)
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		cancel()
		_ = w.Close()
		return nil, fmt.Errorf("gcs write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return s.stat(ctx, obj, objectPath)
		}
		s.log.WithContext(ctx).Errorf("gcs put failed: bucket=%s object=%s err=%v", s.bucket, objectPath, err)
		return nil, fmt.Errorf("gcs put %s: %w", objectPath, err)
	}

	attrs := w.Attrs()
	size := int64(len(data))
	if attrs != nil {
		size = attrs.Size
	}
	s.log.WithContext(ctx).Debugf("gcs object stored: bucket=%s object=%s size=%d", s.bucket, objectPath, size)
	return &services.StoredObject{Path: objectPath, SizeBytes: size}, nil
}

func (s *ObjectStore) stat(ctx context.Context, obj *storage.ObjectHandle, objectPath string) (*services.StoredObject, error) {
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs stat %s: %w", objectPath, err)
	}
	s.log.WithContext(ctx).Infof("gcs object already exists, reusing: bucket=%s object=%s", s.bucket, objectPath)
	return &services.StoredObject{Path: objectPath, SizeBytes: attrs.Size}, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
