package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func (r *BadgerRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	account := Account{
		Id:           uuid.NewString(),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	doc, err := json.Marshal(account)
	if err != nil {
		return Account{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		emailKey := accountEmailKey(params.EmailAddress)
		if _, err := txn.Get(emailKey); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(accountIdKey(account.Id), doc); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(account.Id))
	})
	if err != nil {
		return Account{}, err
	}

	return account, nil
}

func (r *BadgerRepository) GetAccountById(id string) (Account, error) {
	var account Account
	err := r.db.View(func(txn *badger.Txn) error {
		return getJson(txn, accountIdKey(id), &account)
	})
	return account, err
}

func (r *BadgerRepository) GetAccountByEmail(email string) (Account, error) {
	var account Account
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountEmailKey(email))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		var id []byte
		if id, err = item.ValueCopy(nil); err != nil {
			return err
		}

		return getJson(txn, accountIdKey(string(id)), &account)
	})
	return account, err
}

// getJson loads the value at key and unmarshals it into v, mapping a
// missing key to ErrNotFound.
func getJson(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
