// Package metastore implements the in-memory node-id -> Metadata Record
// store: upsert semantics, one record per node, seeded at startup with
// the local node's own descriptor when configured.
package metastore

import (
	"sync"

	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// Store is a concurrency-safe map from NodeID to its last-seen Metadata
// Record.
type Store struct {
	mu      sync.Mutex
	records map[uint64]wireproto.MetadataPayload
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[uint64]wireproto.MetadataPayload)}
}

// Put upserts the record for record.NodeID, replacing any prior record.
func (s *Store) Put(record wireproto.MetadataPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.NodeID] = record
}

// Get returns the last record for id, and whether one exists.
func (s *Store) Get(id uint64) (wireproto.MetadataPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Iter returns a snapshot slice of every known record.
func (s *Store) Iter() []wireproto.MetadataPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wireproto.MetadataPayload, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Len reports how many records are currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
