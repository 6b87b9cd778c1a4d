package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arikaya/kafkabroker/internal/buffer"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
)

func TestReadFrameRejectsOversizedMessage(t *testing.T) {
	var sizeBuf [4]byte
	oversized := int32(MaxMessageSize + 1)
	sizeBuf[0] = byte(oversized >> 24)
	sizeBuf[1] = byte(oversized >> 16)
	sizeBuf[2] = byte(oversized >> 8)
	sizeBuf[3] = byte(oversized)

	_, err := ReadFrame(bytes.NewReader(sizeBuf[:]))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameRejectsNonPositiveMessage(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameReadsExactPayload(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, byte(len(payload))})
	buf.Write(payload)

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUnknownApiKeyReturnsErrorOnlyResponse(t *testing.T) {
	header := buildHeaderBytes(999, 0, 3, nil)
	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(header)
	require.False(t, fatal)
	body := frameBody(t, resp)

	r := buffer.NewReader(body)
	corrID, err := r.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(3), corrID)
	require.NoError(t, r.SkipTagBuffer())

	errCode, err := r.ReadI16()
	require.NoError(t, err)
	assert.Equal(t, int16(35), errCode)
}

func TestHandleMalformedHeaderIsFatal(t *testing.T) {
	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle([]byte{0, 0}) // too short to hold even api_key+api_version
	assert.True(t, fatal)
	assert.Nil(t, resp)
}

func TestHandleMalformedProduceBodyIsFatal(t *testing.T) {
	header := buildHeaderBytes(ProduceKey, 11, 9, nil)
	d := NewDispatcher(metadata.NewStore(), partitionlog.NewStore(""), nil)
	resp, fatal := d.Handle(header) // no body at all: parseProduceRequest fails immediately
	assert.True(t, fatal)
	assert.Nil(t, resp)
}
