package store

import (
	"github.com/avelar-dev/medikit/internal/errors"
	"github.com/dgraph-io/badger/v4"
)

// Get retrieves a value by key. Returns (nil, nil) when the key is absent,
// mirroring an empty AsyncStorage slot rather than an error.
func (s *Store) Get(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("kv:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorage, "kv read failed")
	}

	plain, err := s.codec.Decode(val)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorage, "kv decode failed")
	}
	return plain, nil
}

// Set stores a key-value pair, encoding through the configured codec.
func (s *Store) Set(key string, value []byte) error {
	enc, err := s.codec.Encode(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrStorage, "kv encode failed")
	}

	err = s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("kv:"+key), enc)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrStorage, "kv write failed")
	}
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	err := s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("kv:" + key))
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrStorage, "kv delete failed")
	}
	return nil
}
