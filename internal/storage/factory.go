// Package storage selects and constructs the persistence backend.
package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/storage/badger"
)

// NewStorageManager opens the embedded Badger store described by config.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	return badger.NewManager(logger, &config.Storage.Badger)
}
