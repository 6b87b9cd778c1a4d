package protocol

import "github.com/arikaya/kafkabroker/internal/buffer"

// API keys this broker understands.
const (
	ProduceKey                 = int16(0)
	FetchKey                   = int16(1)
	ApiVersionsKey             = int16(18)
	DescribeTopicPartitionsKey = int16(75)
)

// versionRange is the inclusive [min, max] of api_version this broker
// accepts for a given API key.
type versionRange struct{ min, max int16 }

var supportedVersions = map[int16]versionRange{
	ProduceKey:                 {0, 11},
	FetchKey:                   {16, 16},
	ApiVersionsKey:             {0, 4},
	DescribeTopicPartitionsKey: {0, 0},
}

// supports reports whether version falls within the advertised range for
// apiKey. Unknown API keys report false. For ranges that start at 0 only
// the positive upper bound is enforced — api_version is an int16 and may
// legitimately be 0, so a negative lower bound check is meaningless and is
// not applied. A range with a positive minimum (Fetch's 16..16) also
// rejects versions below it.
func supports(apiKey, version int16) bool {
	r, ok := supportedVersions[apiKey]
	if !ok {
		return false
	}
	if r.min > 0 && version < r.min {
		return false
	}
	return version <= r.max
}

// RequestHeader is the common request-header prefix every in-scope API
// shares for decoding purposes.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      string
	ClientIDNull  bool
}

// ParseRequestHeader reads api_key, api_version, correlation_id, the
// nullable client_id, and the trailing tag buffer.
func ParseRequestHeader(r *buffer.Reader) (RequestHeader, error) {
	var h RequestHeader
	var err error
	if h.APIKey, err = r.ReadI16(); err != nil {
		return h, err
	}
	if h.APIVersion, err = r.ReadI16(); err != nil {
		return h, err
	}
	if h.CorrelationID, err = r.ReadI32(); err != nil {
		return h, err
	}
	h.ClientID, h.ClientIDNull, err = r.ReadNullableString()
	if err != nil {
		return h, err
	}
	if err = r.SkipTagBuffer(); err != nil {
		return h, err
	}
	return h, nil
}

// writeHeaderV0 writes the bare correlation_id response header ApiVersions
// uses (no tag buffer).
func writeHeaderV0(w *buffer.Writer, correlationID int32) {
	w.WriteI32(correlationID)
}

// writeHeaderV1 writes correlation_id followed by an empty tag buffer, the
// flexible response header shape every other in-scope API uses.
func writeHeaderV1(w *buffer.Writer, correlationID int32) {
	w.WriteI32(correlationID)
	w.WriteTagBuffer()
}
