package cache

import (
	"github.com/recivo/recivo/internal/logger"
)

// Initialize initializes the cache system
func Initialize(log *logger.Logger) *InMemoryCache {
	InitializeInMemoryCache()
	log.Info("Cache system initialized")
	return GetInMemoryCache()
}
