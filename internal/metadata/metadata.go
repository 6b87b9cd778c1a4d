// Package metadata loads the Kafka cluster-metadata log (a concatenation
// of record batches, KRaft's on-disk control-plane log) and serves the
// topic/partition lookups the protocol dispatcher needs. The store is
// built once at startup and is read-only and safe for concurrent readers
// from that point on.
package metadata

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/arikaya/kafkabroker/internal/buffer"
)

// Topic is an immutable topic record decoded from the metadata log.
type Topic struct {
	Name string
	UUID buffer.UUID
}

// Partition is an immutable partition record decoded from the metadata
// log, scoped to the topic its UUID resolves to.
type Partition struct {
	ID           int32
	LeaderID     int32
	LeaderEpoch  int32
	ReplicaNodes []int32
}

// Store is the in-memory index built from the metadata log. Once Load
// returns, a Store is never mutated again and requires no locking for
// reads; the mutex below only guards the brief window while Load itself is
// populating it (Load is expected to run once before the acceptor starts,
// but the guard costs nothing and protects against a misuse that calls
// Load twice concurrently).
type Store struct {
	mu                    sync.RWMutex
	topicByName           map[string]Topic
	partitionsByTopicUUID map[buffer.UUID][]Partition
}

// NewStore returns an empty store, as if the metadata log were absent.
func NewStore() *Store {
	return &Store{
		topicByName:           make(map[string]Topic),
		partitionsByTopicUUID: make(map[buffer.UUID][]Partition),
	}
}

// Load reads the metadata log at path and populates s. A missing or
// unreadable file is non-fatal: the store is left empty and err is
// returned only for the caller to log, not to treat as fatal.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("metadata: read %s: %w", path, err)
	}
	return s.loadBytes(data)
}

func (s *Store) loadBytes(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := buffer.NewReader(data)
	for r.Remaining() >= 12 {
		batchStart := r.Off

		baseOffset, err := r.ReadI64()
		if err != nil {
			break
		}
		_ = baseOffset
		batchLength, err := r.ReadI32()
		if err != nil || batchLength <= 0 {
			break
		}

		batchEnd := batchStart + 12 + int(batchLength)
		if batchEnd > len(data) || batchEnd <= r.Off {
			break
		}

		if err := s.parseBatch(r, batchEnd); err != nil {
			// A malformed batch does not invalidate batches already
			// parsed; resume scanning from the next boundary.
		}
		r.Off = batchEnd
	}
	return nil
}

// parseBatch decodes one record batch's header and records, inserting
// topic/partition records into s's indexes as they're found.
func (s *Store) parseBatch(r *buffer.Reader, batchEnd int) error {
	_, err := r.ReadI32() // partition_leader_epoch
	if err != nil {
		return err
	}
	if _, err = r.ReadI8(); err != nil { // magic
		return err
	}
	if _, err = r.ReadI32(); err != nil { // crc
		return err
	}
	attributes, err := r.ReadI16()
	if err != nil {
		return err
	}
	if _, err = r.ReadI32(); err != nil { // last_offset_delta
		return err
	}
	if _, err = r.ReadI64(); err != nil { // base_timestamp
		return err
	}
	if _, err = r.ReadI64(); err != nil { // max_timestamp
		return err
	}
	if _, err = r.ReadI64(); err != nil { // producer_id
		return err
	}
	if _, err = r.ReadI16(); err != nil { // producer_epoch
		return err
	}
	if _, err = r.ReadI32(); err != nil { // base_sequence
		return err
	}
	recordCount, err := r.ReadI32()
	if err != nil {
		return err
	}

	recordsStart := r.Off
	if recordsStart > batchEnd {
		return fmt.Errorf("metadata: batch header overruns batch")
	}
	recordBytes := r.Src[recordsStart:batchEnd]

	if codec := attributes & 0x07; codec != 0 {
		decompressed, derr := decompress(codec, recordBytes)
		if derr != nil {
			// Unsupported/corrupt compression: treat like an unknown
			// record type rather than aborting the whole file load.
			return nil
		}
		recordBytes = decompressed
	}

	rr := buffer.NewReader(recordBytes)
	for i := int32(0); i < recordCount && rr.Remaining() > 0; i++ {
		if stop := s.parseRecord(rr); stop {
			break
		}
	}
	return nil
}

// parseRecord decodes one record and reports whether the caller should
// stop processing the rest of this batch (an unknown record type, or a
// decode failure).
func (s *Store) parseRecord(r *buffer.Reader) (stop bool) {
	length, err := r.ReadSignedVarint()
	if err != nil || length <= 0 {
		return true
	}
	recordEnd := r.Off + int(length)

	if _, err := r.ReadI8(); err != nil { // record attributes
		return true
	}
	if _, err := r.ReadSignedVarint(); err != nil { // timestamp_delta
		return true
	}
	if _, err := r.ReadSignedVarint(); err != nil { // offset_delta
		return true
	}
	keyLength, err := r.ReadSignedVarint()
	if err != nil {
		return true
	}
	if keyLength > 0 {
		if _, err := r.Span(int(keyLength)); err != nil {
			return true
		}
	}
	valueLength, err := r.ReadSignedVarint()
	if err != nil || valueLength < 2 {
		r.Off = recordEnd
		return false
	}
	valueBytes, err := r.Span(int(valueLength))
	if err != nil {
		return true
	}

	vr := buffer.NewReader(valueBytes)
	_, _ = vr.ReadI8() // frame_version
	recordType, err := vr.ReadI8()
	if err != nil {
		r.Off = recordEnd
		return false
	}

	switch recordType {
	case 2:
		s.applyTopicRecord(vr)
	case 3:
		s.applyPartitionRecord(vr)
	default:
		// Unknown record type: abandon the rest of this batch.
		return true
	}

	r.Off = recordEnd
	return false
}

func (s *Store) applyTopicRecord(r *buffer.Reader) {
	if _, err := r.ReadI8(); err != nil { // version
		return
	}
	name, err := r.ReadCompactString()
	if err != nil {
		return
	}
	uuid, err := r.ReadUUID()
	if err != nil {
		return
	}
	s.topicByName[name] = Topic{Name: name, UUID: uuid}
}

func (s *Store) applyPartitionRecord(r *buffer.Reader) {
	if _, err := r.ReadI8(); err != nil { // version
		return
	}
	partitionID, err := r.ReadI32()
	if err != nil {
		return
	}
	topicUUID, err := r.ReadUUID()
	if err != nil {
		return
	}
	replicas, err := readInt32CompactArray(r)
	if err != nil {
		return
	}
	if _, err := readInt32CompactArray(r); err != nil { // isr
		return
	}
	if _, err := readInt32CompactArray(r); err != nil { // removing_replicas
		return
	}
	if _, err := readInt32CompactArray(r); err != nil { // adding_replicas
		return
	}
	leaderID, err := r.ReadI32()
	if err != nil {
		return
	}
	leaderEpoch, err := r.ReadI32()
	if err != nil {
		return
	}
	if _, err := r.ReadI32(); err != nil { // partition_epoch
		return
	}
	if _, err := readUUIDCompactArray(r); err != nil { // directories
		return
	}

	s.partitionsByTopicUUID[topicUUID] = append(s.partitionsByTopicUUID[topicUUID], Partition{
		ID:           partitionID,
		LeaderID:     leaderID,
		LeaderEpoch:  leaderEpoch,
		ReplicaNodes: replicas,
	})
}

func readInt32CompactArray(r *buffer.Reader) ([]int32, error) {
	n, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readUUIDCompactArray(r *buffer.Reader) ([]buffer.UUID, error) {
	n, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]buffer.UUID, 0, n)
	for i := 0; i < n; i++ {
		u, err := r.ReadUUID()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// decompress expands a record-batch payload per the compression codec
// carried in the batch attributes' low 3 bits. Codec 2 (snappy) has no
// wired decoder in this tree (see DESIGN.md) and is reported as an error,
// which callers treat the same as an unknown batch.
func decompress(codec int16, data []byte) ([]byte, error) {
	switch codec {
	case 1: // gzip
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case 3: // lz4
		zr := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(zr)
	case 4: // zstd
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("metadata: unsupported compression codec %d", codec)
	}
}

// IsTopicAvailable reports whether name is a known topic.
func (s *Store) IsTopicAvailable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topicByName[name]
	return ok
}

// GetTopicInfo returns the Topic for name, or a zero-valued Topic (all-zero
// UUID) if absent. It never fails.
func (s *Store) GetTopicInfo(name string) Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topicByName[name]
}

// GetPartitionInfo returns the partitions known for a topic UUID, in the
// order they were inserted while loading the log.
func (s *Store) GetPartitionInfo(uuid buffer.UUID) []Partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitionsByTopicUUID[uuid]
}

// GetPartitionSize returns the number of partitions known for a topic
// UUID.
func (s *Store) GetPartitionSize(uuid buffer.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitionsByTopicUUID[uuid])
}

// IsPartitionIndexAvailable reports whether partitionID is among the known
// partitions for the given topic UUID.
func (s *Store) IsPartitionIndexAvailable(uuid buffer.UUID, partitionID int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.partitionsByTopicUUID[uuid] {
		if p.ID == partitionID {
			return true
		}
	}
	return false
}

// TopicNameByUUID reverse-looks-up a topic's name from its UUID, returning
// "" if the UUID is unknown. Fetch requests address topics by UUID rather
// than name, unlike Produce and DescribeTopicPartitions.
func (s *Store) TopicNameByUUID(uuid buffer.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, t := range s.topicByName {
		if t.UUID == uuid {
			return name
		}
	}
	return ""
}
