package service

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"library-api/internal/domain"
	"library-api/internal/repository"
	"library-api/internal/storage"
)

const (
	snapshotPrefix     = "catalog-"
	snapshotSuffix     = ".json"
	// fixed-width nanoseconds keep keys of same-second exports in creation order
	snapshotTimeLayout = "20060102T150405.000000000Z"
)

// ErrExportDisabled is returned when no storage bucket is configured.
var ErrExportDisabled = &Error{Kind: ErrUnavailable, Message: "Catalog export is not configured"}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CatalogSnapshot is the document written for each export.
type CatalogSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Authors     []snapshotAuthor `json:"authors"`
	Books       []snapshotBook   `json:"books"`
}

type snapshotAuthor struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BirthDate *string `json:"birth_date"`
}

type snapshotBook struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	PublicationYear *int   `json:"publication_year"`
	AuthorID        int64  `json:"author_id"`
	BorrowerID      *int64 `json:"borrower_id"`
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

type ExportConfig struct {
	Bucket    string
	KeyPrefix string
	Logger    *logrus.Logger
}

// ExportService writes catalog snapshots to object storage and keeps their number bounded.
type ExportService interface {
	Export(ctx context.Context) (string, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Prune(ctx context.Context, keep int) (int, error)
}

type exportService struct {
	cfg     ExportConfig
	authors repository.AuthorRepository
	books   repository.BookRepository
	storage storage.Service
	now     func() time.Time
}

func NewExportService(cfg ExportConfig, authors repository.AuthorRepository, books repository.BookRepository, store storage.Service) ExportService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &exportService{
		cfg:     cfg,
		authors: authors,
		books:   books,
		storage: store,
		now:     time.Now,
	}
}

func (s *exportService) Export(ctx context.Context) (string, error) {
	if err := s.enabled(); err != nil {
		return "", err
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := s.snapshotKey(snapshot.GeneratedAt)
	logger := s.cfg.Logger.WithField("key", key)
	logger.Infof("export started: %d authors, %d books", len(snapshot.Authors), len(snapshot.Books))

	dest, err := s.storage.UploadObject(ctx, key, body, storage.UploadOptions{
		Bucket:           s.cfg.Bucket,
		ContentType:      "application/json",
		ProgressCallback: newUploadProgressLogger(logger),
	})
	if err != nil {
		return "", err
	}

	logger.Infof("export uploaded to %s", dest)
	return dest, nil
}

func (s *exportService) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := s.enabled(); err != nil {
		return nil, err
	}

	objects, err := s.storage.ListObjects(ctx, s.cfg.Bucket, s.listPrefix())
	if err != nil {
		return nil, err
	}

	snapshots := make([]SnapshotInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		snapshots = append(snapshots, SnapshotInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	// keys embed a sortable UTC timestamp
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Key > snapshots[j].Key
	})
	return snapshots, nil
}

func (s *exportService) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, badRequest("keep must not be negative")
	}

	snapshots, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(snapshots) <= keep {
		return 0, nil
	}

	stale := make([]string, 0, len(snapshots)-keep)
	for _, snap := range snapshots[keep:] {
		stale = append(stale, snap.Key)
	}
	if err := s.storage.DeleteObjects(ctx, s.cfg.Bucket, stale); err != nil {
		return 0, err
	}

	s.cfg.Logger.Infof("pruned %d catalog snapshots", len(stale))
	return len(stale), nil
}

func (s *exportService) enabled() error {
	if s.storage == nil || s.cfg.Bucket == "" {
		return ErrExportDisabled
	}
	return nil
}

func (s *exportService) snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	authors, err := s.authors.List(ctx)
	if err != nil {
		return nil, err
	}
	books, err := s.books.List(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &CatalogSnapshot{
		GeneratedAt: s.now().UTC(),
		Authors:     make([]snapshotAuthor, 0, len(authors)),
		Books:       make([]snapshotBook, 0, len(books)),
	}
	for _, a := range authors {
		snapshot.Authors = append(snapshot.Authors, toSnapshotAuthor(a))
	}
	for _, b := range books {
		snapshot.Books = append(snapshot.Books, snapshotBook{
			ID:              b.ID,
			Title:           b.Title,
			PublicationYear: b.PublicationYear,
			AuthorID:        b.AuthorID,
			BorrowerID:      b.BorrowerID,
		})
	}
	return snapshot, nil
}

func (s *exportService) snapshotKey(at time.Time) string {
	name := fmt.Sprintf("%s%s-%s%s", snapshotPrefix, at.UTC().Format(snapshotTimeLayout), uuid.NewString(), snapshotSuffix)
	if s.cfg.KeyPrefix == "" {
		return name
	}
	return s.cfg.KeyPrefix + "/" + name
}

func (s *exportService) listPrefix() string {
	if s.cfg.KeyPrefix == "" {
		return snapshotPrefix
	}
	return s.cfg.KeyPrefix + "/" + snapshotPrefix
}

func toSnapshotAuthor(a domain.Author) snapshotAuthor {
	out := snapshotAuthor{ID: a.ID, Name: a.Name}
	if a.BirthDate != nil {
		d := a.BirthDate.Format("02/01/2006")
		out.BirthDate = &d
	}
	return out
}

func newUploadProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if now.Sub(lastLog) < 500*time.Millisecond && done != total {
			return
		}
		lastLog = now
		if total == 0 {
			logger.Debugf("upload progress: %s uploaded", formatBytes(done))
			return
		}
		percent := float64(done) / float64(total) * 100
		logger.Debugf("upload progress: %.1f%% (%s/%s)", percent, formatBytes(done), formatBytes(total))
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}
