// Copyright 2025 Takhin Data, Inc.

package handler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/driftlog/driftlog/pkg/config"
	"github.com/driftlog/driftlog/pkg/kafka/protocol"
	"github.com/driftlog/driftlog/pkg/kafkaerr"
	"github.com/driftlog/driftlog/pkg/logger"
	"github.com/driftlog/driftlog/pkg/storage/topic"
)

// Handler dispatches the two api_keys this broker exposes on the wire:
// ApiVersions and Fetch. Every other topic/partition operation (create,
// delete, produce, replica assignment) is an internal Go API call on
// topic.Manager, never a wire-level endpoint.
type Handler struct {
	config       *config.Config
	logger       *logger.Logger
	topicManager *topic.Manager
	backend      Backend
}

// New creates a new request handler with direct backend
func New(cfg *config.Config, topicMgr *topic.Manager) *Handler {
	return &Handler{
		config:       cfg,
		logger:       logger.Default().WithComponent("kafka-handler"),
		topicManager: topicMgr,
		backend:      NewDirectBackend(topicMgr),
	}
}

// NewWithBackend creates a new request handler with custom backend
func NewWithBackend(cfg *config.Config, topicMgr *topic.Manager, backend Backend) *Handler {
	return &Handler{
		config:       cfg,
		logger:       logger.Default().WithComponent("kafka-handler"),
		topicManager: topicMgr,
		backend:      backend,
	}
}

// Close cleans up resources held by the handler
func (h *Handler) Close() error {
	return nil
}

// HandleRequest processes a Kafka request and returns a response. Any
// api_key other than ApiVersions/Fetch gets a structured error response
// carrying UnsupportedVersion rather than a killed connection, per the
// redesigned handling of unknown/unsupported requests.
func (h *Handler) HandleRequest(reqData []byte) ([]byte, error) {
	r := bytes.NewReader(reqData)

	header, err := protocol.DecodeRequestHeader(r)
	if err != nil {
		return nil, fmt.Errorf("decode request header: %w", kafkaerr.New(kafkaerr.IO, err))
	}

	h.logger.Debug("received request",
		"api_key", header.APIKey,
		"api_version", header.APIVersion,
		"correlation_id", header.CorrelationID,
	)

	var response []byte
	switch header.APIKey {
	case protocol.ApiVersionsKey:
		response, err = h.handleApiVersions(r, header)
	case protocol.FetchKey:
		if !h.isVersionSupported(int16(header.APIKey), header.APIVersion) {
			return h.unsupportedAPIResponse(header)
		}
		response, err = h.handleFetch(r, header)
	default:
		return h.unsupportedAPIResponse(header)
	}

	if err != nil {
		return nil, fmt.Errorf("handle request: %w", err)
	}

	return response, nil
}

// unsupportedAPIResponse builds a minimal response carrying
// error_code=UnsupportedVersion for an api_key this broker does not
// dispatch, instead of closing the connection outright.
func (h *Handler) unsupportedAPIResponse(header *protocol.RequestHeader) ([]byte, error) {
	h.logger.Debug("unsupported api key",
		"api_key", header.APIKey, "error", kafkaerr.New(kafkaerr.UnsupportedVersion, nil))

	var buf bytes.Buffer
	respHeader := &protocol.ResponseHeader{CorrelationID: header.CorrelationID}
	if err := respHeader.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode response header: %w", err)
	}
	if err := protocol.WriteInt16(&buf, int16(protocol.UnsupportedVersion)); err != nil {
		return nil, fmt.Errorf("encode error code: %w", err)
	}
	return buf.Bytes(), nil
}

// handleFetch handles Fetch requests: for each requested partition, read a
// single record at fetch_offset (if it is below the high watermark) and
// report high_watermark/last_stable_offset/log_start_offset.
func (h *Handler) handleFetch(r io.Reader, header *protocol.RequestHeader) ([]byte, error) {
	req, err := protocol.DecodeFetchRequest(r, header)
	if err != nil {
		return nil, fmt.Errorf("decode fetch request: %w", kafkaerr.New(kafkaerr.IO, err))
	}

	h.logger.Debug("fetch request",
		"correlation_id", header.CorrelationID,
		"topics", len(req.Topics),
		"max_wait_ms", req.MaxWaitMs,
	)

	resp := &protocol.FetchResponse{
		ThrottleTimeMs: 0,
		ErrorCode:      protocol.None,
		SessionID:      0,
		Responses:      make([]protocol.FetchTopicResponse, 0, len(req.Topics)),
	}

	for _, topicReq := range req.Topics {
		topicResp := protocol.FetchTopicResponse{
			TopicName:          topicReq.TopicName,
			PartitionResponses: make([]protocol.FetchPartitionResponse, 0, len(topicReq.Partitions)),
		}

		t, exists := h.backend.GetTopic(topicReq.TopicName)
		if !exists {
			for _, partReq := range topicReq.Partitions {
				topicResp.PartitionResponses = append(topicResp.PartitionResponses, protocol.FetchPartitionResponse{
					PartitionIndex:       partReq.PartitionIndex,
					ErrorCode:            protocol.UnknownTopicOrPartition,
					PreferredReadReplica: -1,
					Records:              []byte{},
				})
			}
			resp.Responses = append(resp.Responses, topicResp)
			continue
		}

		for _, partReq := range topicReq.Partitions {
			hwm, hwmErr := t.HighWaterMark(partReq.PartitionIndex)
			if hwmErr != nil {
				h.logger.Debug("partition not found",
					"topic", topicReq.TopicName, "partition", partReq.PartitionIndex,
					"error", kafkaerr.New(kafkaerr.PartitionNotFound, hwmErr))
				topicResp.PartitionResponses = append(topicResp.PartitionResponses, protocol.FetchPartitionResponse{
					PartitionIndex:       partReq.PartitionIndex,
					ErrorCode:            protocol.UnknownTopicOrPartition,
					PreferredReadReplica: -1,
					Records:              []byte{},
				})
				continue
			}

			partResp := protocol.FetchPartitionResponse{
				PartitionIndex:       partReq.PartitionIndex,
				ErrorCode:            protocol.None,
				HighWatermark:        hwm,
				LastStableOffset:     hwm,
				LogStartOffset:       0,
				PreferredReadReplica: -1,
				Records:              []byte{},
			}

			if partReq.FetchOffset < hwm {
				record, err := t.Read(partReq.PartitionIndex, partReq.FetchOffset)
				if err == nil && record != nil {
					partResp.Records = record.Value
				}
			}

			topicResp.PartitionResponses = append(topicResp.PartitionResponses, partResp)
		}

		resp.Responses = append(resp.Responses, topicResp)
	}

	var buf bytes.Buffer
	respHeader := &protocol.ResponseHeader{CorrelationID: header.CorrelationID}
	if err := respHeader.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode response header: %w", err)
	}
	if err := resp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode fetch response: %w", err)
	}

	h.logger.Debug("fetch response", "correlation_id", header.CorrelationID)

	return buf.Bytes(), nil
}
