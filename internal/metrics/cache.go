package metrics

import (
	"sync"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// RecordCache stores recent analysis records in memory (ephemeral).
// It backs SNMP polling and resets on restart; nothing reads it for history.
type RecordCache struct {
	maxSize int
	records []*models.AnalysisRecord
	mu      sync.RWMutex
}

// NewRecordCache creates a new record cache with the specified size
func NewRecordCache(maxSize int) *RecordCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &RecordCache{
		maxSize: maxSize,
		records: make([]*models.AnalysisRecord, 0, maxSize),
	}
}

// Add adds a record to the cache.
// If the cache is full, the oldest record is removed.
func (c *RecordCache) Add(record *models.AnalysisRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, record)

	// Trim to max size (keep most recent)
	if len(c.records) > c.maxSize {
		c.records = c.records[len(c.records)-c.maxSize:]
	}
}

// GetLast returns the N most recent records, oldest first
func (c *RecordCache) GetLast(n int) []*models.AnalysisRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.records) {
		n = len(c.records)
	}
	if n < 0 {
		n = 0
	}

	// Make a copy to avoid race conditions
	records := make([]*models.AnalysisRecord, n)
	copy(records, c.records[len(c.records)-n:])
	return records
}

// Count returns the current number of cached records
func (c *RecordCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
