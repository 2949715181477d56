// Copyright 2025 Takhin Data, Inc.

package handler

import (
	"bytes"
	"fmt"
	"io"
	"net"

	"github.com/driftlog/driftlog/pkg/kafka/protocol"
	"github.com/driftlog/driftlog/pkg/storage/log"
	"github.com/driftlog/driftlog/pkg/zerocopy"
)

// ZeroCopyFetchResponse represents a Fetch response that can be sent using zero-copy I/O.
type ZeroCopyFetchResponse struct {
	HeaderBytes []byte         // Pre-encoded response header and metadata
	Segments    []FetchSegment // File segments to send with zero-copy
}

// FetchSegment represents a segment of data to be sent with zero-copy.
type FetchSegment struct {
	Segment  *log.Segment
	Position int64
	Size     int64
}

// HandleFetchZeroCopy processes a Fetch request and writes the response
// directly to the connection, sending record bytes straight from the
// segment file instead of through an intermediate buffer when possible.
func (h *Handler) HandleFetchZeroCopy(reqData []byte, conn net.Conn) error {
	r := bytes.NewReader(reqData)

	header, err := protocol.DecodeRequestHeader(r)
	if err != nil {
		return fmt.Errorf("decode request header: %w", err)
	}

	req, err := protocol.DecodeFetchRequest(r, header)
	if err != nil {
		return fmt.Errorf("decode fetch request: %w", err)
	}

	h.logger.Debug("fetch request (zero-copy)",
		"correlation_id", header.CorrelationID,
		"topics", len(req.Topics),
		"max_wait_ms", req.MaxWaitMs,
	)

	var headerBuf bytes.Buffer
	respHeader := &protocol.ResponseHeader{CorrelationID: header.CorrelationID}
	if err := respHeader.Encode(&headerBuf); err != nil {
		return fmt.Errorf("encode response header: %w", err)
	}

	resp := &protocol.FetchResponse{
		ThrottleTimeMs: 0,
		ErrorCode:      protocol.None,
		SessionID:      0,
		Responses:      make([]protocol.FetchTopicResponse, 0, len(req.Topics)),
	}

	segments := make([]FetchSegment, 0)
	totalDataSize := int64(0)

	for _, topicReq := range req.Topics {
		t, exists := h.backend.GetTopic(topicReq.TopicName)
		if !exists {
			topicResp := protocol.FetchTopicResponse{
				TopicName:          topicReq.TopicName,
				PartitionResponses: make([]protocol.FetchPartitionResponse, 0, len(topicReq.Partitions)),
			}
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

		topicResp := protocol.FetchTopicResponse{
			TopicName:          topicReq.TopicName,
			PartitionResponses: make([]protocol.FetchPartitionResponse, 0, len(topicReq.Partitions)),
		}

		for _, partReq := range topicReq.Partitions {
			hwm, _ := t.HighWaterMark(partReq.PartitionIndex)

			partResp := protocol.FetchPartitionResponse{
				PartitionIndex:       partReq.PartitionIndex,
				ErrorCode:            protocol.None,
				HighWatermark:        hwm,
				LastStableOffset:     hwm,
				LogStartOffset:       0,
				PreferredReadReplica: -1,
				Records:              []byte{}, // sent via zero-copy when a segment is found below
			}

			if partReq.FetchOffset < hwm && req.MaxBytes > 0 {
				segment, position, size, err := t.ReadRange(
					partReq.PartitionIndex,
					partReq.FetchOffset,
					int64(req.MaxBytes),
				)
				if err == nil && segment != nil && size > 0 {
					segments = append(segments, FetchSegment{
						Segment:  segment,
						Position: position,
						Size:     size,
					})
					totalDataSize += size
				}
			}

			topicResp.PartitionResponses = append(topicResp.PartitionResponses, partResp)
		}

		resp.Responses = append(resp.Responses, topicResp)
	}

	var metaBuf bytes.Buffer
	if err := resp.Encode(&metaBuf); err != nil {
		return fmt.Errorf("encode fetch response: %w", err)
	}

	headerBytes := headerBuf.Bytes()
	metaBytes := metaBuf.Bytes()
	totalSize := int64(len(headerBytes)+len(metaBytes)) + totalDataSize

	sizeBuf := []byte{
		byte(totalSize >> 24),
		byte(totalSize >> 16),
		byte(totalSize >> 8),
		byte(totalSize),
	}
	if _, err := conn.Write(sizeBuf); err != nil {
		return fmt.Errorf("write size: %w", err)
	}
	if _, err := conn.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := conn.Write(metaBytes); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	tcpConn, ok := conn.(*net.TCPConn)
	totalWritten := int64(0)

	if ok && len(segments) > 0 {
		for _, seg := range segments {
			dataFile := seg.Segment.DataFile()
			written, err := zerocopy.SendFile(tcpConn, dataFile, seg.Position, seg.Size)
			if err != nil {
				h.logger.Warn("zero-copy transfer failed, using fallback",
					"error", err,
					"written", written,
				)
			}
			totalWritten += written
		}
	} else if len(segments) > 0 {
		h.logger.Debug("non-TCP connection, using regular copy")
		for _, seg := range segments {
			dataFile := seg.Segment.DataFile()
			if _, err := dataFile.Seek(seg.Position, io.SeekStart); err != nil {
				return fmt.Errorf("seek segment: %w", err)
			}
			written, err := io.CopyN(conn, dataFile, seg.Size)
			if err != nil {
				return fmt.Errorf("copy segment: %w", err)
			}
			totalWritten += written
		}
	}

	h.logger.Debug("fetch response sent (zero-copy)",
		"correlation_id", header.CorrelationID,
		"total_bytes", totalSize,
		"data_bytes", totalWritten,
		"segments", len(segments),
		"zero_copy", ok && len(segments) > 0,
	)

	return nil
}
