package protocol

import (
	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/kerr"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
)

type fetchPartitionRequest struct {
	Index              int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	PartitionMaxBytes  int32
}

type fetchTopicRequest struct {
	UUID       buffer.UUID
	Partitions []fetchPartitionRequest
}

func parseFetchRequest(body []byte) ([]fetchTopicRequest, error) {
	r := buffer.NewReader(body)

	if _, err := r.ReadI32(); err != nil { // max_wait_ms
		return nil, err
	}
	if _, err := r.ReadI32(); err != nil { // min_bytes
		return nil, err
	}
	if _, err := r.ReadI32(); err != nil { // max_bytes
		return nil, err
	}
	if _, err := r.ReadI8(); err != nil { // isolation_level
		return nil, err
	}
	if _, err := r.ReadI32(); err != nil { // session_id
		return nil, err
	}
	if _, err := r.ReadI32(); err != nil { // session_epoch
		return nil, err
	}

	nTopics, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	topics := make([]fetchTopicRequest, 0, max(nTopics, 0))
	for i := 0; i < nTopics; i++ {
		var t fetchTopicRequest
		if t.UUID, err = r.ReadUUID(); err != nil {
			return nil, err
		}

		nParts, err := r.ReadCompactArrayLength()
		if err != nil {
			return nil, err
		}
		t.Partitions = make([]fetchPartitionRequest, 0, max(nParts, 0))
		for j := 0; j < nParts; j++ {
			var p fetchPartitionRequest
			if p.Index, err = r.ReadI32(); err != nil {
				return nil, err
			}
			if p.CurrentLeaderEpoch, err = r.ReadI32(); err != nil {
				return nil, err
			}
			if p.FetchOffset, err = r.ReadI64(); err != nil {
				return nil, err
			}
			if _, err := r.ReadI32(); err != nil { // last_fetched_epoch
				return nil, err
			}
			if _, err := r.ReadI64(); err != nil { // log_start_offset
				return nil, err
			}
			if p.PartitionMaxBytes, err = r.ReadI32(); err != nil {
				return nil, err
			}
			if err := r.SkipTagBuffer(); err != nil {
				return nil, err
			}
			t.Partitions = append(t.Partitions, p)
		}
		if err := r.SkipTagBuffer(); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}

	nForgotten, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nForgotten; i++ {
		if _, err := r.ReadUUID(); err != nil {
			return nil, err
		}
		nParts, err := r.ReadCompactArrayLength()
		if err != nil {
			return nil, err
		}
		for j := 0; j < nParts; j++ {
			if _, err := r.ReadI32(); err != nil {
				return nil, err
			}
		}
		if err := r.SkipTagBuffer(); err != nil {
			return nil, err
		}
	}

	if _, _, err := r.ReadCompactNullableString(); err != nil { // rack_id
		return nil, err
	}
	if err := r.SkipTagBuffer(); err != nil {
		return nil, err
	}
	return topics, nil
}

// handleFetch implements API key 1, version 16 — a supplemental addition
// reading back whatever handleProduce appended to the partition log within
// the same broker run. Nothing is fetched across restarts or from any other
// process: there is no replication, no real log segments, and no
// max_wait_ms/min_bytes long-poll (every call returns immediately with
// whatever is currently in the log). A body that fails to parse is
// reported to the caller as fatal (ok=false): this broker never had a
// valid understanding of what was requested, so it closes the connection
// rather than guess at a response.
func handleFetch(h RequestHeader, body []byte, store *metadata.Store, logs *partitionlog.Store) (resp []byte, ok bool) {
	topics, err := parseFetchRequest(body)
	if err != nil {
		return nil, false
	}

	w := buffer.NewWriter(256)
	w.WriteI32(0) // throttle_time_ms
	w.WriteI16(0) // error_code
	w.WriteI32(0) // session_id

	w.WriteCompactArrayLength(len(topics))
	for _, t := range topics {
		w.WriteUUID(t.UUID)
		topicName := store.TopicNameByUUID(t.UUID)

		w.WriteCompactArrayLength(len(t.Partitions))
		for _, p := range t.Partitions {
			writeFetchPartitionResult(w, store, logs, topicName, t.UUID, p)
		}
		w.WriteTagBuffer()
	}
	w.WriteTagBuffer()

	hw := buffer.NewWriter(8)
	writeHeaderV1(hw, h.CorrelationID)
	return buffer.FrameResponse(hw.Bytes(), w.Bytes()), true
}

func writeFetchPartitionResult(
	w *buffer.Writer,
	store *metadata.Store,
	logs *partitionlog.Store,
	topicName string,
	topicUUID buffer.UUID,
	p fetchPartitionRequest,
) {
	knownTopic := topicName != ""
	knownPartition := knownTopic && store.IsPartitionIndexAvailable(topicUUID, p.Index)

	errorCode := kerr.UnknownTopicID.Code
	var records []byte
	highWatermark := int64(0)
	if knownPartition {
		errorCode = 0
		records = logs.Read(topicName, p.Index)
		highWatermark = logs.HighWatermark(topicName, p.Index)
	}
	if records == nil {
		records = []byte{} // empty, not null, when nothing has been produced
	}

	w.WriteI32(p.Index)
	w.WriteI16(errorCode)
	w.WriteI64(highWatermark)    // high_watermark
	w.WriteI64(highWatermark)    // last_stable_offset
	w.WriteI64(0)                // log_start_offset
	w.WriteCompactArrayLength(0) // aborted_transactions
	w.WriteI32(-1)               // preferred_read_replica
	w.WriteCompactBytes(records)
	w.WriteTagBuffer()
}
