// Copyright 2025 Takhin Data, Inc.

package handler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/pkg/config"
	"github.com/driftlog/driftlog/pkg/kafka/protocol"
	"github.com/driftlog/driftlog/pkg/storage/topic"
)

func newAPIVersionsTestHandler(t *testing.T) *Handler {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 9092,
		},
		Storage: config.StorageConfig{
			DataDir:        t.TempDir(),
			LogSegmentSize: 1024 * 1024,
		},
		Kafka: config.KafkaConfig{
			BrokerID: 1,
		},
	}

	topicMgr := topic.NewManager(cfg.Storage.DataDir, cfg.Storage.LogSegmentSize)
	t.Cleanup(func() { topicMgr.Close() })

	return New(cfg, topicMgr)
}

func TestHandleApiVersions_Success(t *testing.T) {
	h := newAPIVersionsTestHandler(t)

	header := &protocol.RequestHeader{
		APIKey:        protocol.ApiVersionsKey,
		APIVersion:    4,
		CorrelationID: 123,
	}

	var reqBuf bytes.Buffer
	require.NoError(t, protocol.WriteCompactString(&reqBuf, "kafka-go"))
	require.NoError(t, protocol.WriteCompactString(&reqBuf, "1.0.0"))
	require.NoError(t, protocol.WriteTagBuffer(&reqBuf))

	responseBytes, err := h.handleApiVersions(bytes.NewReader(reqBuf.Bytes()), header)
	require.NoError(t, err)
	require.NotNil(t, responseBytes)

	respReader := bytes.NewReader(responseBytes)

	corrID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, header.CorrelationID, corrID)

	resp, err := protocol.DecodeApiVersionsResponse(respReader, header.APIVersion)
	require.NoError(t, err)
	assert.Equal(t, protocol.None, resp.ErrorCode)
	assert.NotEmpty(t, resp.APIVersions)

	apiMap := make(map[int16]protocol.APIVersion)
	for _, api := range resp.APIVersions {
		apiMap[api.APIKey] = api
	}

	assert.Contains(t, apiMap, int16(protocol.ApiVersionsKey))
	assert.Contains(t, apiMap, int16(protocol.FetchKey))

	fetchAPI := apiMap[int16(protocol.FetchKey)]
	assert.Equal(t, int16(0), fetchAPI.MinVersion)
	assert.Equal(t, int16(16), fetchAPI.MaxVersion)
}

func TestHandleApiVersions_Version0(t *testing.T) {
	h := newAPIVersionsTestHandler(t)

	header := &protocol.RequestHeader{
		APIKey:        protocol.ApiVersionsKey,
		APIVersion:    0,
		CorrelationID: 456,
	}

	responseBytes, err := h.handleApiVersions(bytes.NewReader([]byte{}), header)
	require.NoError(t, err)
	require.NotNil(t, responseBytes)

	respReader := bytes.NewReader(responseBytes)

	corrID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, header.CorrelationID, corrID)

	resp, err := protocol.DecodeApiVersionsResponse(respReader, header.APIVersion)
	require.NoError(t, err)
	assert.Equal(t, protocol.None, resp.ErrorCode)
	assert.NotEmpty(t, resp.APIVersions)
	assert.Equal(t, int32(0), resp.ThrottleTimeMs)
}

func TestHandleApiVersions_ScopedAPIs(t *testing.T) {
	h := newAPIVersionsTestHandler(t)

	apiVersions := h.getSupportedAPIVersions()
	require.Len(t, apiVersions, 2, "only ApiVersions and Fetch are dispatched over the wire")

	apiMap := make(map[int16]protocol.APIVersion)
	for _, api := range apiVersions {
		apiMap[api.APIKey] = api
	}

	assert.Contains(t, apiMap, int16(protocol.ApiVersionsKey))
	assert.Contains(t, apiMap, int16(protocol.FetchKey))
	assert.Equal(t, int16(4), apiMap[int16(protocol.ApiVersionsKey)].MaxVersion)
	assert.Equal(t, int16(16), apiMap[int16(protocol.FetchKey)].MaxVersion)
}

func TestHandleApiVersions_UnsupportedVersion(t *testing.T) {
	h := newAPIVersionsTestHandler(t)

	header := &protocol.RequestHeader{
		APIKey:        protocol.ApiVersionsKey,
		APIVersion:    99,
		CorrelationID: 789,
	}

	responseBytes, err := h.handleApiVersions(bytes.NewReader([]byte{}), header)
	require.NoError(t, err)
	require.NotNil(t, responseBytes)

	respReader := bytes.NewReader(responseBytes)

	corrID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, header.CorrelationID, corrID)

	resp, err := protocol.DecodeApiVersionsResponse(respReader, header.APIVersion)
	require.NoError(t, err)
	assert.Equal(t, protocol.UnsupportedVersion, resp.ErrorCode)
	assert.EqualValues(t, 35, resp.ErrorCode)
}

func TestHandleRequest_FetchUnsupportedVersion(t *testing.T) {
	h := newAPIVersionsTestHandler(t)

	header := &protocol.RequestHeader{
		APIKey:        protocol.FetchKey,
		APIVersion:    99,
		CorrelationID: 321,
	}

	var reqBuf bytes.Buffer
	require.NoError(t, header.Encode(&reqBuf))

	responseBytes, err := h.HandleRequest(reqBuf.Bytes())
	require.NoError(t, err)
	require.NotNil(t, responseBytes)

	respReader := bytes.NewReader(responseBytes)
	corrID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, header.CorrelationID, corrID)

	errCode, err := protocol.ReadInt16(respReader)
	require.NoError(t, err)
	assert.EqualValues(t, 35, errCode)
}
