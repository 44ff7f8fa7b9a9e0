package gcs_test

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/gcs"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

// fakeGCS 模拟 JSON API 的 multipart 上传与对象元数据读取。
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		f.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/storage/v1/b/"):
		f.handleGet(w, r)
	default:
		http.Error(w, "unexpected request", http.StatusNotImplemented)
	}
}

func (f *fakeGCS) handleUpload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reader := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dataPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(dataPart)
	bucket := strings.Split(strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/"), "/")[0]

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if _, exists := f.objects[meta.Name]; exists {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`{"error":{"code":412,"message":"At least one of the pre-conditions you specified did not hold."}}`))
		return
	}
	f.objects[meta.Name] = data
	writeObject(w, bucket, meta.Name, len(data))
}

func (f *fakeGCS) handleGet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/storage/v1/b/")
	parts := strings.SplitN(rest, "/o/", 2)
	if len(parts) != 2 {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	data, ok := f.objects[parts[1]]
	f.mu.Unlock()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
		return
	}
	writeObject(w, parts[0], parts[1], len(data))
}

func writeObject(w http.ResponseWriter, bucket, name string, size int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"bucket":     bucket,
		"name":       name,
		"size":       strconv.Itoa(size),
		"generation": "1",
	})
}

func newObjectStore(t *testing.T, fake *fakeGCS) *gcs.ObjectStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := gcs.NewObjectStore(client, "outreach-media", nil, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	return store
}

func TestObjectStorePut(t *testing.T) {
	fake := &fakeGCS{objects: map[string][]byte{}}
	store := newObjectStore(t, fake)

	obj, err := store.Put(context.Background(), "raw_videos/owner/video", "video/mp4", []byte("binary-data"))
	require.NoError(t, err)
	require.Equal(t, "raw_videos/owner/video", obj.Path)
	require.Equal(t, int64(len("binary-data")), obj.SizeBytes)
	require.Equal(t, []byte("binary-data"), fake.objects["raw_videos/owner/video"])
}

func TestObjectStorePutIsWriteOnce(t *testing.T) {
	fake := &fakeGCS{objects: map[string][]byte{"raw_videos/owner/video": []byte("original")}}
	store := newObjectStore(t, fake)

	obj, err := store.Put(context.Background(), "raw_videos/owner/video", "video/mp4", []byte("replacement-bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(len("original")), obj.SizeBytes)
	require.Equal(t, []byte("original"), fake.objects["raw_videos/owner/video"])
}

func TestNewObjectStoreValidation(t *testing.T) {
	_, err := gcs.NewObjectStore(nil, "bucket", nil, log.NewStdLogger(io.Discard))
	require.Error(t, err)
}
