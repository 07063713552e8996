package service_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-api/internal/service"
	"library-api/internal/storage"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) UploadObject(ctx context.Context, key string, body []byte, opts storage.UploadOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(int64(len(body)), int64(len(body)))
	}
	return "s3://" + opts.Bucket + "/" + key, nil
}

func (m *memoryStorage) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for key, body := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(body))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStorage) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *memoryStorage) put(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = []byte("{}")
}

func (m *memoryStorage) body(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func Test_ExportService_WritesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reader := f.mustUser(t, "reader@example.com")
	born := time.Date(1903, time.June, 25, 0, 0, 0, 0, time.UTC)
	author, err := f.authors.Create(ctx, "George Orwell", &born)
	require.NoError(t, err)
	book := f.mustBook(t, "Animal Farm", author.ID)
	_, err = f.books.Borrow(ctx, book.ID, reader.ID)
	require.NoError(t, err)

	store := newMemoryStorage()
	exports := service.NewExportService(service.ExportConfig{
		Bucket:    "library",
		KeyPrefix: "/catalog-exports/",
		Logger:    quietLogger(),
	}, f.authorRepo, f.bookRepo, store)

	dest, err := exports.Export(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dest, "s3://library/catalog-exports/catalog-"), dest)
	require.True(t, strings.HasSuffix(dest, ".json"), dest)

	key := strings.TrimPrefix(dest, "s3://library/")
	var snapshot struct {
		Authors []struct {
			Name      string  `json:"name"`
			BirthDate *string `json:"birth_date"`
		} `json:"authors"`
		Books []struct {
			Title      string `json:"title"`
			AuthorID   int64  `json:"author_id"`
			BorrowerID *int64 `json:"borrower_id"`
		} `json:"books"`
	}
	require.NoError(t, jsoniter.Unmarshal(store.body(key), &snapshot))

	require.Len(t, snapshot.Authors, 1)
	assert.Equal(t, "George Orwell", snapshot.Authors[0].Name)
	require.NotNil(t, snapshot.Authors[0].BirthDate)
	assert.Equal(t, "25/06/1903", *snapshot.Authors[0].BirthDate)
	require.Len(t, snapshot.Books, 1)
	assert.Equal(t, "Animal Farm", snapshot.Books[0].Title)
	assert.Equal(t, author.ID, snapshot.Books[0].AuthorID)
	require.NotNil(t, snapshot.Books[0].BorrowerID)
	assert.Equal(t, reader.ID, *snapshot.Books[0].BorrowerID)
}

func Test_ExportService_ListAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := newMemoryStorage()
	store.put("exports/catalog-20260101T000000Z-a.json")
	store.put("exports/catalog-20260102T000000Z-b.json")
	store.put("exports/catalog-20260103T000000Z-c.json")
	store.put("exports/notes.txt")

	exports := service.NewExportService(service.ExportConfig{
		Bucket:    "library",
		KeyPrefix: "exports",
		Logger:    quietLogger(),
	}, f.authorRepo, f.bookRepo, store)

	snapshots, err := exports.List(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, "exports/catalog-20260103T000000Z-c.json", snapshots[0].Key)
	assert.Equal(t, "exports/catalog-20260101T000000Z-a.json", snapshots[2].Key)

	removed, err := exports.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	snapshots, err = exports.List(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "exports/catalog-20260103T000000Z-c.json", snapshots[0].Key)
	assert.NotNil(t, store.body("exports/notes.txt"))
}

func Test_ExportService_PruneKeepsLatestOfBackToBackExports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAuthor(t, "Ursula K. Le Guin")
	store := newMemoryStorage()
	exports := service.NewExportService(service.ExportConfig{
		Bucket:    "library",
		KeyPrefix: "exports",
		Logger:    quietLogger(),
	}, f.authorRepo, f.bookRepo, store)

	_, err := exports.Export(ctx)
	require.NoError(t, err)
	latest, err := exports.Export(ctx)
	require.NoError(t, err)
	latestKey := strings.TrimPrefix(latest, "s3://library/")

	snapshots, err := exports.List(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, latestKey, snapshots[0].Key)

	removed, err := exports.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NotNil(t, store.body(latestKey))
}

func Test_ExportService_DisabledWithoutBucket(t *testing.T) {
	f := newFixture(t)

	exports := service.NewExportService(service.ExportConfig{Logger: quietLogger()}, f.authorRepo, f.bookRepo, nil)

	_, err := exports.Export(context.Background())
	requireKind(t, err, service.ErrUnavailable, "Catalog export is not configured")
	_, err = exports.List(context.Background())
	assert.ErrorIs(t, err, service.ErrExportDisabled)
}
