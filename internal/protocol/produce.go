package protocol

import (
	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/kerr"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
)

type producePartitionRequest struct {
	Index   int32
	Records []byte
}

type produceTopicRequest struct {
	Name       string
	Partitions []producePartitionRequest
}

func parseProduceRequest(body []byte) ([]produceTopicRequest, error) {
	r := buffer.NewReader(body)

	if _, _, err := r.ReadCompactNullableString(); err != nil { // transactional_id
		return nil, err
	}
	if _, err := r.ReadI16(); err != nil { // acks
		return nil, err
	}
	if _, err := r.ReadI32(); err != nil { // timeout_ms
		return nil, err
	}

	nTopics, err := r.ReadCompactArrayLength()
	if err != nil {
		return nil, err
	}
	topics := make([]produceTopicRequest, 0, max(nTopics, 0))
	for i := 0; i < nTopics; i++ {
		var t produceTopicRequest
		if t.Name, err = r.ReadCompactString(); err != nil {
			return nil, err
		}

		nParts, err := r.ReadCompactArrayLength()
		if err != nil {
			return nil, err
		}
		t.Partitions = make([]producePartitionRequest, 0, max(nParts, 0))
		for j := 0; j < nParts; j++ {
			var p producePartitionRequest
			if p.Index, err = r.ReadI32(); err != nil {
				return nil, err
			}
			recLen, err := r.ReadCompactArrayLength()
			if err != nil {
				return nil, err
			}
			if recLen > 0 {
				if p.Records, err = r.Span(recLen); err != nil {
					return nil, err
				}
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
	if err := r.SkipTagBuffer(); err != nil {
		return nil, err
	}
	return topics, nil
}

// handleProduce implements API key 0. Records are decoded and, for
// known topic/partitions, appended to the in-memory partition log so a
// later Fetch in the same process can read them back; nothing is
// durable across restarts, and there is no real replication or producer
// acknowledgement. A body that fails to parse is reported to the caller
// as fatal (ok=false): this broker never had a valid understanding of
// what was requested, so it closes the connection rather than guess at a
// response.
func handleProduce(h RequestHeader, body []byte, store *metadata.Store, logs *partitionlog.Store) (resp []byte, ok bool) {
	topics, err := parseProduceRequest(body)
	if err != nil {
		return nil, false
	}

	w := buffer.NewWriter(256)
	w.WriteCompactArrayLength(len(topics))

	for _, t := range topics {
		w.WriteCompactString(t.Name)

		topicKnown := store.IsTopicAvailable(t.Name)
		topicInfo := store.GetTopicInfo(t.Name)

		w.WriteCompactArrayLength(len(t.Partitions))
		for _, p := range t.Partitions {
			writeProducePartitionResult(w, store, logs, t.Name, topicKnown, topicInfo.UUID, p)
		}
		w.WriteTagBuffer()
	}

	w.WriteI32(0) // throttle_time_ms
	w.WriteTagBuffer()

	hw := buffer.NewWriter(8)
	writeHeaderV1(hw, h.CorrelationID)
	return buffer.FrameResponse(hw.Bytes(), w.Bytes()), true
}

func writeProducePartitionResult(
	w *buffer.Writer,
	store *metadata.Store,
	logs *partitionlog.Store,
	topicName string,
	topicKnown bool,
	topicUUID buffer.UUID,
	p producePartitionRequest,
) {
	partitionKnown := topicKnown && store.IsPartitionIndexAvailable(topicUUID, p.Index)

	errorCode := kerr.UnknownTopicOrPartition.Code
	baseOffset := int64(-1)
	logStartOffset := int64(-1)

	if partitionKnown {
		// logs.Append's return value is this broker's own incrementing
		// bookkeeping offset for Fetch/HighWatermark; it is not the wire
		// base_offset, which stays 0 on every successful Produce response.
		_, err := logs.Append(topicName, p.Index, p.Records)
		if err == nil {
			errorCode = 0
			baseOffset = 0
			logStartOffset = 0
		}
	}

	w.WriteI32(p.Index)
	w.WriteI16(errorCode)
	w.WriteI64(baseOffset)
	w.WriteI64(-1) // log_append_time
	w.WriteI64(logStartOffset)
	w.WriteCompactArrayLength(0) // record_errors: empty
	w.WriteCompactNullableString(nil)
	w.WriteTagBuffer()
}
