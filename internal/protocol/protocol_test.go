package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
)

// frameBody strips the framed response down to header+body bytes after the
// 4-byte length prefix, verifying the prefix matches the remaining length.
func frameBody(t *testing.T, frame []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), 4)
	size := int32(frame[0])<<24 | int32(frame[1])<<16 | int32(frame[2])<<8 | int32(frame[3])
	assert.Equal(t, int(size), len(frame)-4)
	return frame[4:]
}

// buildHeaderBytes writes the exact header shape ParseRequestHeader expects:
// api_key, api_version, correlation_id, nullable_string client_id (i16-length
// form), tag_buffer.
func buildHeaderBytes(apiKey, apiVersion int16, correlationID int32, clientID *string) []byte {
	w := buffer.NewWriter(16)
	w.WriteI16(apiKey)
	w.WriteI16(apiVersion)
	w.WriteI32(correlationID)
	w.WriteNullableString(clientID)
	w.WriteTagBuffer()
	return w.Bytes()
}

func TestApiVersionsHappyPath(t *testing.T) {
	frame := buildHeaderBytes(ApiVersionsKey, 4, 7, nil) // no body fields this handler reads

	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(frame)
	require.False(t, fatal)
	body := frameBody(t, resp)

	r := buffer.NewReader(body)
	correlationID, err := r.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(7), correlationID)

	errCode, err := r.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(0), errCode)

	n, err := r.ReadCompactArrayLength()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// TestApiVersionsUnsupportedVersion also pins down that an ApiVersions
// error response keeps the v0 (no tag buffer) header shape, matching the
// success path in handleApiVersions: unlike every other in-scope API,
// ApiVersions never gains a tag buffer in its response header.
func TestApiVersionsUnsupportedVersion(t *testing.T) {
	header := buildHeaderBytes(ApiVersionsKey, 99, 7, nil)
	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(header)
	require.False(t, fatal)
	body := frameBody(t, resp)

	r := buffer.NewReader(body)
	_, err := r.ReadI32() // correlation_id
	require.NoError(t, err)
	errCode, err := r.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(35), errCode) // UNSUPPORTED_VERSION
}

func TestDescribeTopicPartitionsUnknownTopic(t *testing.T) {
	reqBody := buffer.NewWriter(32)
	reqBody.WriteCompactArrayLength(1)
	reqBody.WriteCompactString("ghost")
	reqBody.WriteTagBuffer()
	reqBody.WriteI32(10) // response_partition_limit
	reqBody.WriteI8(-1)  // cursor
	reqBody.WriteTagBuffer()

	header := buildHeaderBytes(DescribeTopicPartitionsKey, 0, 1, nil)
	frame := append(header, reqBody.Bytes()...)

	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(frame)
	require.False(t, fatal)
	body := frameBody(t, resp)

	r := buffer.NewReader(body)
	_, err := r.ReadI32() // correlation_id
	require.NoError(t, err)
	require.NoError(t, r.SkipTagBuffer())

	_, err = r.ReadI32() // throttle_time_ms
	require.NoError(t, err)

	n, err := r.ReadCompactArrayLength()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	errCode, err := r.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(3), errCode) // UNKNOWN_TOPIC_OR_PARTITION

	name, err := r.ReadCompactString()
	require.NoError(t, err)
	assert.Equal(t, "ghost", name)
}

func TestProduceToUnknownPartitionReportsError(t *testing.T) {
	reqBody := buffer.NewWriter(64)
	reqBody.WriteCompactNullableString(nil) // transactional_id
	reqBody.WriteI16(1)                     // acks
	reqBody.WriteI32(1000)                  // timeout_ms
	reqBody.WriteCompactArrayLength(1)       // topics
	reqBody.WriteCompactString("orders")
	reqBody.WriteCompactArrayLength(1) // partitions
	reqBody.WriteI32(0)                // partition index
	reqBody.WriteCompactArrayLength(3) // records byte length
	reqBody.WriteRaw([]byte{1, 2, 3})
	reqBody.WriteTagBuffer() // partition tag buffer
	reqBody.WriteTagBuffer() // topic tag buffer
	reqBody.WriteTagBuffer() // request tag buffer

	header := buildHeaderBytes(ProduceKey, 11, 5, nil)
	frame := append(header, reqBody.Bytes()...)

	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(frame)
	require.False(t, fatal)
	body := frameBody(t, resp)

	r := buffer.NewReader(body)
	_, err := r.ReadI32()
	require.NoError(t, err)
	require.NoError(t, r.SkipTagBuffer())

	n, err := r.ReadCompactArrayLength()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	name, err := r.ReadCompactString()
	require.NoError(t, err)
	assert.Equal(t, "orders", name)

	nParts, err := r.ReadCompactArrayLength()
	require.NoError(t, err)
	require.Equal(t, 1, nParts)

	_, err = r.ReadI32() // partition index
	require.NoError(t, err)
	errCode, err := r.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(3), errCode) // UNKNOWN_TOPIC_OR_PARTITION
}

// TestProduceBaseOffsetStaysZeroAcrossAppends pins down that base_offset is
// always 0 on a successful Produce response, even on the second append to
// the same partition (logs.Append's own incrementing bookkeeping offset
// must never leak onto the wire), and that record_errors is an empty
// array, not a null one.
func TestProduceBaseOffsetStaysZeroAcrossAppends(t *testing.T) {
	var topicUUID buffer.UUID
	for i := range topicUUID {
		topicUUID[i] = byte(0x20 + i)
	}
	path := buildMetadataLog(t, "orders", topicUUID, 0)

	mdStore := metadata.NewStore()
	require.NoError(t, mdStore.Load(path))
	logStore := partitionlog.NewStore("")
	d := NewDispatcher(mdStore, logStore, nil)

	buildProduceFrame := func(correlationID int32) []byte {
		reqBody := buffer.NewWriter(64)
		reqBody.WriteCompactNullableString(nil) // transactional_id
		reqBody.WriteI16(1)                     // acks
		reqBody.WriteI32(1000)                  // timeout_ms
		reqBody.WriteCompactArrayLength(1)       // topics
		reqBody.WriteCompactString("orders")
		reqBody.WriteCompactArrayLength(1) // partitions
		reqBody.WriteI32(0)                // partition index
		reqBody.WriteCompactArrayLength(3) // records byte length
		reqBody.WriteRaw([]byte{1, 2, 3})
		reqBody.WriteTagBuffer()
		reqBody.WriteTagBuffer()
		reqBody.WriteTagBuffer()

		header := buildHeaderBytes(ProduceKey, 11, correlationID, nil)
		return append(header, reqBody.Bytes()...)
	}

	for i, correlationID := range []int32{1, 2} {
		resp, fatal := d.Handle(buildProduceFrame(correlationID))
		require.False(t, fatal)
		body := frameBody(t, resp)

		r := buffer.NewReader(body)
		_, err := r.ReadI32() // correlation_id
		require.NoError(t, err)
		require.NoError(t, r.SkipTagBuffer())

		_, err = r.ReadCompactArrayLength() // topics
		require.NoError(t, err)
		_, err = r.ReadCompactString() // topic name
		require.NoError(t, err)
		_, err = r.ReadCompactArrayLength() // partitions
		require.NoError(t, err)

		_, err = r.ReadI32() // partition index
		require.NoError(t, err)
		errCode, err := r.ReadI16()
		require.NoError(t, err)
		require.Equal(t, int16(0), errCode, "append %d", i)

		baseOffset, err := r.ReadI64()
		require.NoError(t, err)
		assert.Equal(t, int64(0), baseOffset, "append %d", i)

		_, err = r.ReadI64() // log_append_time
		require.NoError(t, err)
		_, err = r.ReadI64() // log_start_offset
		require.NoError(t, err)

		recordErrors, err := r.ReadCompactArrayLength()
		require.NoError(t, err)
		assert.Equal(t, 0, recordErrors, "record_errors must be empty, not null")
	}
}
