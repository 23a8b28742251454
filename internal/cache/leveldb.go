package cache

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// LevelDB is a file-backed Store that survives restarts.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database directory at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	const op = "cache.leveldb.Open"

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return &LevelDB{db: db}, nil
}

func (s *LevelDB) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	const op = "cache.leveldb.Get"

	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return entry, nil
}

func (s *LevelDB) Put(_ context.Context, entry models.CacheEntry) error {
	const op = "cache.leveldb.Put"

	data, err := encodeEntry(entry)
	if err != nil {
		return unavailable(op, err)
	}
	if err := s.db.Put([]byte(entry.Key), data, nil); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *LevelDB) List(_ context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	const op = "cache.leveldb.List"

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	out := make([]models.CacheEntry, 0)
	for iter.Next() {
		entry, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, *entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func (s *LevelDB) Delete(_ context.Context, key string) error {
	const op = "cache.leveldb.Delete"

	if err := s.db.Delete([]byte(key), nil); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
