package port

import (
	"github.com/vertextoedge/czds-fetch/internal/domain/repository"
)

// HistoryRepository is an alias to domain repository interface
type HistoryRepository = repository.HistoryRepository

// Store is an alias to domain repository interface
type Store = repository.Store
