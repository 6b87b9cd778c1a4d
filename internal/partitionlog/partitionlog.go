// Package partitionlog is the broker's best-effort, process-lifetime
// record store backing Produce and Fetch. It is intentionally not part of
// the Metadata Store: it is mutable after startup, while the Metadata
// Store is frozen before the acceptor ever serves a connection.
//
// Durability is out of scope; this exists only so a Fetch issued after a
// Produce in the same broker run sees the bytes that were produced.
// Records are also mirrored to disk under a /tmp/kraft-combined-logs/
// <topic>-<partition> convention, but that mirror is not read back across
// restarts.
package partitionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type key struct {
	topic     string
	partition int32
}

type entry struct {
	records    []byte
	nextOffset int64
}

// Store holds accumulated record bytes per topic-partition.
type Store struct {
	mu      sync.Mutex
	dir     string
	entries map[key]*entry
}

// NewStore returns a Store that mirrors writes under baseDir (the
// /tmp/kraft-combined-logs convention). If baseDir is empty, writes stay
// in memory only.
func NewStore(baseDir string) *Store {
	return &Store{dir: baseDir, entries: make(map[key]*entry)}
}

// Append adds records to the given topic-partition's accumulated log and
// returns the base offset assigned to this append (0 for the first
// append, incrementing by 1 per call — not a real per-record offset
// scheme, just enough for Fetch to report monotonically increasing
// offsets within a run).
func (s *Store) Append(topic string, partition int32, records []byte) (baseOffset int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{topic, partition}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	baseOffset = e.nextOffset
	e.records = append(e.records, records...)
	e.nextOffset++

	if s.dir != "" {
		if werr := s.mirrorToDisk(topic, partition, e.records); werr != nil {
			return baseOffset, werr
		}
	}
	return baseOffset, nil
}

// Read returns the accumulated record bytes for a topic-partition, or nil
// if nothing has been produced to it this run.
func (s *Store) Read(topic string, partition int32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{topic, partition}]
	if !ok {
		return nil
	}
	return append([]byte(nil), e.records...)
}

// HighWatermark reports the next offset that would be assigned for a
// topic-partition, i.e. how many Produce calls have landed there.
func (s *Store) HighWatermark(topic string, partition int32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{topic, partition}]
	if !ok {
		return 0
	}
	return e.nextOffset
}

func (s *Store) mirrorToDisk(topic string, partition int32, records []byte) error {
	dir := filepath.Join(s.dir, fmt.Sprintf("%s-%d", topic, partition))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "00000000000000000000.log"), records, 0o644)
}
