package dataset

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

var ErrIndexOutOfRange = errors.New("dataset: index out of range")

var (
	keyCount     = []byte("meta/count")
	recordPrefix = []byte("rec/")
)

// Store persists records in BadgerDB keyed by their insertion index.
// Reads are safe for concurrent use.
type Store struct {
	db    *badger.DB
	mu    sync.Mutex
	count int
}

// OpenStore opens (or creates) the store in dir. An empty dir keeps the
// store in memory.
func OpenStore(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset store")
	}
	var s = &Store{db: db}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyCount)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var n, err = strconv.Atoi(string(val))
			s.count = n
			return err
		})
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "read dataset size")
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func recordKey(index int) []byte {
	var key = make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], uint64(index))
	return key
}

// Append stores records after the existing ones.
func (s *Store) Append(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wb = s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range records {
		var value, err = records[i].MarshalBinary()
		if err != nil {
			return err
		}
		if err := wb.Set(recordKey(s.count+i), value); err != nil {
			return errors.Wrap(err, "write record")
		}
	}
	if err := wb.Set(keyCount, []byte(strconv.Itoa(s.count+len(records)))); err != nil {
		return errors.Wrap(err, "write dataset size")
	}
	if err := wb.Flush(); err != nil {
		return errors.Wrap(err, "flush records")
	}
	s.count += len(records)
	return nil
}

func (s *Store) Record(index int) (Record, error) {
	var rec Record
	if index < 0 || index >= s.Len() {
		return rec, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", index, s.Len())
	}
	var err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(index))
		if err != nil {
			return err
		}
		return item.Value(rec.UnmarshalBinary)
	})
	return rec, errors.Wrapf(err, "read record %d", index)
}

// LoadAll reads every record into memory in index order.
func (s *Store) LoadAll() ([]Record, error) {
	var result = make([]Record, 0, s.Len())
	var err = s.db.View(func(txn *badger.Txn) error {
		var opts = badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		var it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(rec.UnmarshalBinary); err != nil {
				return err
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load records")
	}
	return result, nil
}
