package gate

import (
	"fmt"
	"time"

	"chatpro/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	keyCredential = []byte("credential")
)

type dbCredential struct {
	Token    string `msgpack:"token"`
	UserID   int64  `msgpack:"userId"`
	Username string `msgpack:"username"`
}

func (c *dbCredential) MarshalBinary() ([]byte, error) {
	type alias dbCredential
	return msgpack.Marshal((*alias)(c))
}

func (c *dbCredential) UnmarshalBinary(data []byte) error {
	type alias dbCredential
	return msgpack.Unmarshal(data, (*alias)(c))
}

// Store persists the session credential across restarts. It is the only
// durable local state the client keeps; chatrooms and messages are always
// re-derived from the remote.
type Store struct {
	db *bbolt.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutCredential(cred Credential) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		record := &dbCredential{
			Token:    cred.Token,
			UserID:   cred.UserID,
			Username: cred.Username,
		}

		data, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSession).Put(keyCredential, data)
	})
}

func (s *Store) GetCredential() (Credential, error) {
	var cred Credential
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(keyCredential)
		if data == nil {
			return models.ErrNotFound
		}

		var record dbCredential
		if err := record.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("corrupt credential record: %w", err)
		}

		cred = Credential{
			Token:    record.Token,
			UserID:   record.UserID,
			Username: record.Username,
		}
		return nil
	})
	return cred, err
}

func (s *Store) DeleteCredential() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyCredential)
	})
}
