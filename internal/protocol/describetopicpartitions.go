package protocol

import (
	"sort"

	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/kerr"
	"github.com/arikaya/kafkabroker/internal/metadata"
)

type describeTopicRequest struct {
	Name string
}

func parseDescribeTopicPartitionsRequest(body []byte) ([]describeTopicRequest, error) {
	r := buffer.NewReader(body)

	n, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	topics := make([]describeTopicRequest, 0, max(n, 0))
	for i := 0; i < n; i++ {
		name, err := r.ReadCompactString()
		if err != nil {
			return nil, err
		}
		if err := r.SkipTagBuffer(); err != nil {
			return nil, err
		}
		topics = append(topics, describeTopicRequest{Name: name})
	}

	if _, err := r.ReadI32(); err != nil { // response_partition_limit
		return nil, err
	}
	if _, err := r.ReadI8(); err != nil { // cursor
		return nil, err
	}
	if err := r.SkipTagBuffer(); err != nil {
		return nil, err
	}
	return topics, nil
}

// handleDescribeTopicPartitions implements API key 75, version 0. A body
// that fails to parse is reported to the caller as fatal (ok=false): this
// broker never had a valid understanding of what was requested, so it
// closes the connection rather than guess at a response.
func handleDescribeTopicPartitions(h RequestHeader, body []byte, store *metadata.Store) (resp []byte, ok bool) {
	reqs, err := parseDescribeTopicPartitionsRequest(body)
	if err != nil {
		return nil, false
	}

	seen := make(map[string]bool, len(reqs))
	names := make([]string, 0, len(reqs))
	for _, t := range reqs {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		names = append(names, t.Name)
	}
	sort.Strings(names)

	w := buffer.NewWriter(256)
	w.WriteI32(0) // throttle_time_ms
	w.WriteCompactArrayLength(len(names))

	for _, name := range names {
		writeDescribeTopicBlock(w, name, store)
	}

	w.WriteI8(-1) // next_cursor: null
	w.WriteTagBuffer()

	hw := buffer.NewWriter(8)
	writeHeaderV1(hw, h.CorrelationID)
	return buffer.FrameResponse(hw.Bytes(), w.Bytes()), true
}

func writeDescribeTopicBlock(w *buffer.Writer, name string, store *metadata.Store) {
	topic := store.GetTopicInfo(name)
	known := store.IsTopicAvailable(name)

	if !known {
		w.WriteI16(kerr.UnknownTopicOrPartition.Code)
		w.WriteCompactString(name)
		w.WriteUUID(buffer.UUID{})
		w.WriteI8(0) // is_internal
		w.WriteCompactArrayLength(0)
		w.WriteI32(0) // topic_authorized_operations
		w.WriteTagBuffer()
		return
	}

	w.WriteI16(0)
	w.WriteCompactString(name)
	w.WriteUUID(topic.UUID)
	w.WriteI8(0) // is_internal

	partitions := store.GetPartitionInfo(topic.UUID)
	w.WriteCompactArrayLength(len(partitions))
	for _, p := range partitions {
		w.WriteI16(0) // error_code
		w.WriteI32(p.ID)
		w.WriteI32(p.LeaderID)
		w.WriteI32(p.LeaderEpoch)

		w.WriteCompactArrayLength(len(p.ReplicaNodes))
		for _, n := range p.ReplicaNodes {
			w.WriteI32(n)
		}
		w.WriteCompactArrayLength(0) // isr_nodes
		w.WriteCompactArrayLength(0) // eligible_leader_replicas
		w.WriteCompactArrayLength(0) // last_known_elr
		w.WriteCompactArrayLength(0) // offline_replicas
		w.WriteTagBuffer()
	}

	w.WriteI32(0) // topic_authorized_operations
	w.WriteTagBuffer()
}
