// Package protocol implements the Kafka request/response wire format for
// the APIs this broker understands: ApiVersions, DescribeTopicPartitions,
// Produce, and a supplemental Fetch. A Dispatcher owns no connection state
// of its own — it is handed one request frame at a time by the server's
// Connection Acceptor and returns one response frame.
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/kerr"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/metrics"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
)

// MaxMessageSize bounds a single request frame's declared length. A client
// declaring more than this is treated as a protocol violation and its
// connection is closed rather than trusted to allocate an arbitrary amount
// of memory.
const MaxMessageSize = 1_000_000

// ErrFrameTooLarge is returned when a request's declared message_size
// exceeds MaxMessageSize or is not positive.
var ErrFrameTooLarge = errors.New("protocol: request frame exceeds maximum size")

// Dispatcher routes one decoded request to its handler and assembles the
// response frame. It is safe for concurrent use: all the state it touches
// (the metadata Store, the partition log Store, the metrics Recorder) is
// independently safe for concurrent access.
type Dispatcher struct {
	metadata *metadata.Store
	logs     *partitionlog.Store
	metrics  metrics.Recorder
}

// NewDispatcher builds a Dispatcher over the given metadata and partition
// log stores. A nil metrics.Recorder is replaced with a no-op one.
func NewDispatcher(md *metadata.Store, logs *partitionlog.Store, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.NopRecorder()
	}
	return &Dispatcher{metadata: md, logs: logs, metrics: rec}
}

// ConnectionOpened and ConnectionClosed forward to the configured
// metrics.Recorder, so internal/server never needs to know one exists.
func (d *Dispatcher) ConnectionOpened() { d.metrics.ConnectionOpened() }
func (d *Dispatcher) ConnectionClosed() { d.metrics.ConnectionClosed() }

// ReadFrame reads one length-prefixed request frame from r: a 4-byte
// message_size followed by that many bytes. It returns ErrFrameTooLarge for
// an out-of-range size and io.EOF when the connection closes
// cleanly before a new frame starts.
func ReadFrame(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := int32(sizeBuf[0])<<24 | int32(sizeBuf[1])<<16 | int32(sizeBuf[2])<<8 | int32(sizeBuf[3])
	if size <= 0 || size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Handle decodes one request frame and returns the full response frame
// (length prefix included) ready to write back to the connection, plus
// whether the frame was fatally malformed. A fatal result carries a nil
// resp: a decode failure (an unparseable header, or a handler that could
// not parse its own request body) aborts processing of this frame and the
// caller must close the connection without writing anything back, rather
// than send a response for a request it never understood.
func (d *Dispatcher) Handle(frame []byte) (resp []byte, fatal bool) {
	r := buffer.NewReader(frame)
	h, err := ParseRequestHeader(r)
	if err != nil {
		d.metrics.ObserveDecodeError()
		return nil, true
	}

	body := frame[r.Off:]

	if !supports(h.APIKey, h.APIVersion) {
		resp := errorOnlyResponse(h, kerr.UnsupportedVersion.Code)
		d.metrics.ObserveRequest(h.APIKey, h.APIVersion, kerr.UnsupportedVersion.Code, len(frame))
		return resp, false
	}

	var ok bool
	switch h.APIKey {
	case ApiVersionsKey:
		resp, ok = handleApiVersions(h, body), true
	case DescribeTopicPartitionsKey:
		resp, ok = handleDescribeTopicPartitions(h, body, d.metadata)
	case ProduceKey:
		resp, ok = handleProduce(h, body, d.metadata, d.logs)
	case FetchKey:
		resp, ok = handleFetch(h, body, d.metadata, d.logs)
	default:
		resp, ok = errorOnlyResponse(h, kerr.UnsupportedVersion.Code), true
	}

	if !ok {
		d.metrics.ObserveDecodeError()
		return nil, true
	}

	// Handlers report per-topic/per-partition error codes inside their own
	// response bodies; at the dispatch level a request that reached a
	// handler at all is recorded as error_code 0, distinct from the
	// version/decode failures handled above.
	d.metrics.ObserveRequest(h.APIKey, h.APIVersion, 0, len(frame))
	return resp, false
}

// errorOnlyResponse builds a minimal response frame whose body is just the
// i16 error_code field, for a request that decoded fine but named an
// API/version this broker does not support. ApiVersions is the only
// in-scope API whose response header has no tag buffer (v0); every other
// API in scope uses the v1 (tag-buffer) shape, so the header written here
// follows h.APIKey rather than always assuming v1.
func errorOnlyResponse(h RequestHeader, errorCode int16) []byte {
	w := buffer.NewWriter(2)
	w.WriteI16(errorCode)

	hw := buffer.NewWriter(8)
	if h.APIKey == ApiVersionsKey {
		writeHeaderV0(hw, h.CorrelationID)
	} else {
		writeHeaderV1(hw, h.CorrelationID)
	}
	return buffer.FrameResponse(hw.Bytes(), w.Bytes())
}
