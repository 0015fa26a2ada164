// Package memorystorage is the default storage when neither a database DSN
// nor a file path is configured. It reuses the jsondb cache without a file.
package memorystorage

import (
	"github.com/tierlink/tierlink/internal/db/jsondb"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.NewCache(),
		},
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}
