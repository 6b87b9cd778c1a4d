package protocol

import "github.com/arikaya/kafkabroker/internal/buffer"

// handleApiVersions implements API key 18. The request body (client_id,
// client_software_version, tag_buffer) carries nothing this broker needs,
// so it is not parsed — an unsupported version has already short-circuited
// to errorOnlyResponse before this is called.
func handleApiVersions(h RequestHeader, _ []byte) []byte {
	w := buffer.NewWriter(64)
	w.WriteI16(0) // error_code: NONE

	w.WriteCompactArrayLength(len(supportedVersions))
	for _, apiKey := range []int16{ProduceKey, FetchKey, ApiVersionsKey, DescribeTopicPartitionsKey} {
		r := supportedVersions[apiKey]
		w.WriteI16(apiKey)
		w.WriteI16(r.min)
		w.WriteI16(r.max)
		w.WriteTagBuffer()
	}

	w.WriteI32(0) // throttle_time_ms
	w.WriteTagBuffer()

	hw := buffer.NewWriter(8)
	writeHeaderV0(hw, h.CorrelationID)

	return buffer.FrameResponse(hw.Bytes(), w.Bytes())
}
