package bill

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const reportsBucketName = "reports"

var (
	// ErrReportNotFound is returned when no report is tracked under an ID
	ErrReportNotFound = errors.New("report not found")
	// ErrRegistryLocked is returned when another process holds the registry open
	ErrRegistryLocked = errors.New("report registry is in use by another process")
)

// ReportEntry is a temporary report file tracked for cleanup
type ReportEntry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Submitted int       `json:"submitted"`
	Extracted int       `json:"extracted"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportRegistry tracks temporary report files until they are released
type ReportRegistry interface {
	// Track records a report file built from result
	Track(path string, result *BatchResult) (*ReportEntry, error)

	// Get retrieves a tracked report by ID
	Get(id string) (*ReportEntry, error)

	// List returns all tracked reports
	List() ([]*ReportEntry, error)

	// Remove deletes a report file and forgets it
	Remove(id string) error

	// Release removes every tracked report file
	Release() error

	// Close closes the registry
	Close() error
}

// IDGenerator generates unique IDs for reports
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// BoltRegistry implements ReportRegistry using BoltDB, so files left behind by a
// crashed process are still released on the next start
type BoltRegistry struct {
	db          *bbolt.DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewBoltRegistry opens (or creates) a registry at path
func NewBoltRegistry(path string) (*BoltRegistry, error) {
	return NewBoltRegistryWithDeps(path, &uuidGenerator{}, &defaultTimeSource{})
}

// NewBoltRegistryWithDeps opens a registry with custom dependencies for testing
func NewBoltRegistryWithDeps(path string, idGen IDGenerator, timeSrc TimeSource) (*BoltRegistry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("opening boltdb %s: %w", path, ErrRegistryLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(reportsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltRegistry{db: db, idGenerator: idGen, timeSource: timeSrc}, nil
}

// Track records a report file built from result
func (b *BoltRegistry) Track(path string, result *BatchResult) (*ReportEntry, error) {
	entry := &ReportEntry{
		ID:        b.idGenerator.Generate(),
		Path:      path,
		CreatedAt: b.timeSource.Now(),
	}
	if result != nil {
		entry.Submitted = result.Submitted
		entry.Extracted = result.Extracted()
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportsBucketName))
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling report entry: %w", err)
		}
		return bucket.Put([]byte(entry.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Get retrieves a tracked report by ID
func (b *BoltRegistry) Get(id string) (*ReportEntry, error) {
	var entry *ReportEntry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportsBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns all tracked reports
func (b *BoltRegistry) List() ([]*ReportEntry, error) {
	entries := make([]*ReportEntry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportsBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var entry ReportEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling report entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Remove deletes a report file and forgets it
func (b *BoltRegistry) Remove(id string) error {
	entry, err := b.Get(id)
	if err != nil {
		return err
	}
	if err := removeReportFile(entry.Path); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reportsBucketName)).Delete([]byte(id))
	})
}

// Release removes every tracked report file. Entries whose file cannot be
// removed stay tracked and the errors are returned together.
func (b *BoltRegistry) Release() error {
	entries, err := b.List()
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := b.Remove(entry.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Info("Cleaned up temporary report", "path", entry.Path)
	}
	return errors.Join(errs...)
}

// Close closes the database connection
func (b *BoltRegistry) Close() error {
	return b.db.Close()
}

// removeReportFile deletes path; a file that is already gone is not an error
func removeReportFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting report file: %w", err)
	}
	return nil
}
