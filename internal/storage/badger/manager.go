// Package badger persists fetched pages and key/value settings in an
// embedded Badger database via badgerhold.
package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *DB
	pages  interfaces.PageStorage
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewManager opens the database and wires the typed stores on top of it.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := Open(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		pages:  NewPageStorage(db, logger),
		kv:     NewKVStorage(db, logger),
		logger: logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// PageStorage returns the page cache storage interface
func (m *Manager) PageStorage() interfaces.PageStorage {
	return m.pages
}

// KVStorage returns the key/value storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DB returns the underlying badgerhold store for maintenance jobs.
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
