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

func newTestHandler(t *testing.T) *Handler {
	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			BrokerID:       1,
			AdvertisedHost: "localhost",
			AdvertisedPort: 9092,
		},
		Storage: config.StorageConfig{
			DataDir:        t.TempDir(),
			LogSegmentSize: 1024 * 1024,
		},
	}

	topicMgr := topic.NewManager(cfg.Storage.DataDir, cfg.Storage.LogSegmentSize)
	t.Cleanup(func() { topicMgr.Close() })

	return New(cfg, topicMgr)
}

func TestHandleApiVersions(t *testing.T) {
	h := newTestHandler(t)

	var reqBuf bytes.Buffer
	header := &protocol.RequestHeader{
		APIKey:        protocol.ApiVersionsKey,
		APIVersion:    2,
		CorrelationID: 123,
	}
	require.NoError(t, header.Encode(&reqBuf))

	resp, err := h.HandleRequest(reqBuf.Bytes())
	require.NoError(t, err)
	assert.NotEmpty(t, resp)

	respReader := bytes.NewReader(resp)
	correlationID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, int32(123), correlationID)
}

func TestHandleFetchUnknownTopic(t *testing.T) {
	h := newTestHandler(t)

	var reqBuf bytes.Buffer
	header := &protocol.RequestHeader{
		APIKey:        protocol.FetchKey,
		APIVersion:    16,
		CorrelationID: 456,
	}
	require.NoError(t, header.Encode(&reqBuf))

	req := &protocol.FetchRequest{
		ReplicaID: -1,
		MaxWaitMs: 100,
		MinBytes:  1,
		MaxBytes:  1024,
		Topics: []protocol.FetchTopic{
			{
				TopicName: "missing-topic",
				Partitions: []protocol.FetchPartition{
					{PartitionIndex: 0, FetchOffset: 0, PartitionMaxBytes: 1024},
				},
			},
		},
	}
	require.NoError(t, protocol.WriteInt32(&reqBuf, req.ReplicaID))
	require.NoError(t, protocol.WriteInt32(&reqBuf, req.MaxWaitMs))
	require.NoError(t, protocol.WriteInt32(&reqBuf, req.MinBytes))
	require.NoError(t, protocol.WriteInt32(&reqBuf, req.MaxBytes))
	require.NoError(t, protocol.WriteInt8(&reqBuf, 0))
	require.NoError(t, protocol.WriteInt32(&reqBuf, 0))
	require.NoError(t, protocol.WriteInt32(&reqBuf, 0))
	require.NoError(t, protocol.WriteCompactArrayLen(&reqBuf, 1))
	require.NoError(t, protocol.WriteCompactString(&reqBuf, "missing-topic"))
	require.NoError(t, protocol.WriteCompactArrayLen(&reqBuf, 1))
	require.NoError(t, protocol.WriteInt32(&reqBuf, 0))
	require.NoError(t, protocol.WriteInt32(&reqBuf, -1))
	require.NoError(t, protocol.WriteInt64(&reqBuf, 0))
	require.NoError(t, protocol.WriteInt32(&reqBuf, -1))
	require.NoError(t, protocol.WriteInt64(&reqBuf, 0))
	require.NoError(t, protocol.WriteInt32(&reqBuf, 1024))
	require.NoError(t, protocol.WriteTagBuffer(&reqBuf))
	require.NoError(t, protocol.WriteTagBuffer(&reqBuf))
	require.NoError(t, protocol.WriteCompactArrayLen(&reqBuf, 0))
	require.NoError(t, protocol.WriteCompactString(&reqBuf, ""))
	require.NoError(t, protocol.WriteTagBuffer(&reqBuf))

	resp, err := h.HandleRequest(reqBuf.Bytes())
	require.NoError(t, err)
	assert.NotEmpty(t, resp)
}

func TestHandleUnsupportedAPIKey(t *testing.T) {
	h := newTestHandler(t)

	var reqBuf bytes.Buffer
	header := &protocol.RequestHeader{
		APIKey:        protocol.ProduceKey,
		APIVersion:    0,
		CorrelationID: 789,
	}
	require.NoError(t, header.Encode(&reqBuf))

	resp, err := h.HandleRequest(reqBuf.Bytes())
	require.NoError(t, err)

	respReader := bytes.NewReader(resp)
	correlationID, err := protocol.ReadInt32(respReader)
	require.NoError(t, err)
	assert.Equal(t, int32(789), correlationID)

	errCode, err := protocol.ReadInt16(respReader)
	require.NoError(t, err)
	assert.Equal(t, int16(protocol.UnsupportedVersion), errCode)
}
