// Package snapshot persists the processed catalog in a local Badger store so
// later runs can skip fetching and decoding the raw source.
//
// Layout: one key per item ("item:00000042") holding the JSON encoded
// catalog.Item, plus a "meta" record describing the snapshot. Keys are
// zero-padded so iteration order equals catalog order.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/chriscorrea/playnext/internal/catalog"
)

const (
	itemKeyPrefix = "item:"
	metaKey       = "meta"

	// formatVersion changes whenever the stored item encoding changes.
	formatVersion = 1
)

var (
	// ErrNoSnapshot is returned by Load when nothing usable is stored.
	ErrNoSnapshot = errors.New("no catalog snapshot")
	// ErrCorrupt is returned when stored items disagree with the metadata.
	ErrCorrupt = errors.New("catalog snapshot is corrupt")
)

// Meta describes a stored snapshot.
type Meta struct {
	Version int       `json:"version"`
	Count   int       `json:"count"`
	Source  string    `json:"source"`
	BuiltAt time.Time `json:"built_at"`
}

// Store is a Badger-backed catalog snapshot.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the snapshot store in dir.
func Open(dir string) (*Store, error) {
	return OpenWithOptions(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenWithOptions opens the store with explicit Badger options, e.g.
// WithInMemory(true) for tests.
func OpenWithOptions(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces any stored snapshot with items.
func (s *Store) Save(items []catalog.Item, source string) error {
	// invalidate first so an interrupted save never looks complete
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaKey))
	}); err != nil {
		return fmt.Errorf("clear snapshot meta: %w", err)
	}

	stale, err := s.staleKeys(len(items))
	if err != nil {
		return err
	}

	// a write batch splits large catalogs across transactions
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	for _, key := range stale {
		if err := batch.Delete(key); err != nil {
			return fmt.Errorf("delete stale item: %w", err)
		}
	}
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %d: %w", i, err)
		}
		if err := batch.Set(itemKey(i), data); err != nil {
			return fmt.Errorf("set item %d: %w", i, err)
		}
	}

	meta := Meta{Version: formatVersion, Count: len(items), Source: source, BuiltAt: time.Now().UTC()}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := batch.Set([]byte(metaKey), data); err != nil {
		return fmt.Errorf("set snapshot meta: %w", err)
	}

	if err := batch.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}

	slog.Debug("Catalog snapshot saved", "items", len(items), "source", source)
	return nil
}

// Meta returns the stored snapshot metadata, or ErrNoSnapshot.
func (s *Store) Meta() (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = readMeta(txn)
		return err
	})
	return meta, err
}

// Load returns the stored items in catalog order along with their metadata.
func (s *Store) Load() ([]catalog.Item, Meta, error) {
	var (
		meta  Meta
		items []catalog.Item
	)

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = readMeta(txn)
		if err != nil {
			return err
		}

		items = make([]catalog.Item, 0, meta.Count)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var item catalog.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return fmt.Errorf("%w: decode %s: %v", ErrCorrupt, it.Item().Key(), err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, Meta{}, err
	}

	if len(items) != meta.Count {
		return nil, Meta{}, fmt.Errorf("%w: %d items stored, meta records %d", ErrCorrupt, len(items), meta.Count)
	}

	slog.Debug("Catalog snapshot loaded", "items", len(items), "source", meta.Source, "builtAt", meta.BuiltAt)
	return items, meta, nil
}

// staleKeys lists stored item keys at positions >= count.
func (s *Store) staleKeys(count int) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(itemKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(itemKey(count)); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return keys, nil
}

func readMeta(txn *badger.Txn) (Meta, error) {
	var meta Meta

	entry, err := txn.Get([]byte(metaKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, ErrNoSnapshot
	}
	if err != nil {
		return meta, fmt.Errorf("get snapshot meta: %w", err)
	}

	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	}); err != nil {
		return meta, fmt.Errorf("%w: decode meta: %v", ErrCorrupt, err)
	}
	if meta.Version != formatVersion {
		return meta, fmt.Errorf("%w: format version %d, want %d", ErrNoSnapshot, meta.Version, formatVersion)
	}
	return meta, nil
}

func itemKey(i int) []byte {
	return []byte(fmt.Sprintf("%s%08d", itemKeyPrefix, i))
}
