package storage

import (
	"encoding/json"
	"log/slog"

	"relay-lab/auth"
	"relay-lab/errors"

	"github.com/dgraph-io/badger/v4"
)

const clientPrefix = "client:"

// ClientStore persists registered clients in BadgerDB, keyed by user id.
// It implements auth.ClientRepository.
type ClientStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewClientStore(db *badger.DB, log *slog.Logger) ClientStore {
	return ClientStore{db: db, log: log}
}

// Create stores a new client. The duplicate check and the write share one
// transaction, so two concurrent registrations cannot both win.
func (s ClientStore) Create(client auth.Client) error {
	key := []byte(clientPrefix + client.UserID)
	bytes, err := json.Marshal(client)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return errors.ErrClientExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// Get loads the client registered under the user id.
func (s ClientStore) Get(userID string) (auth.Client, error) {
	var client auth.Client
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(clientPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &client)
		})
	})
	if err != nil {
		return auth.Client{}, err
	}
	return client, nil
}
