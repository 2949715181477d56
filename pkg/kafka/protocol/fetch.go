// Copyright 2025 Takhin Data, Inc.

package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// FetchRequest is the Fetch v16 request: a flexible-version schema using
// compact arrays/strings and tag buffers throughout.
type FetchRequest struct {
	Header         *RequestHeader
	ReplicaID      int32 // -1 for consumer, broker ID for follower fetch
	MaxWaitMs      int32
	MinBytes       int32
	MaxBytes       int32
	IsolationLevel int8
	SessionID      int32
	SessionEpoch   int32
	Topics         []FetchTopic
	RackID         string
}

// FetchTopic represents a topic in a Fetch request
type FetchTopic struct {
	TopicName  string
	Partitions []FetchPartition
}

// FetchPartition represents a partition in a Fetch request
type FetchPartition struct {
	PartitionIndex      int32
	CurrentLeaderEpoch  int32
	FetchOffset         int64
	LastFetchedEpoch    int32
	LogStartOffset      int64
	PartitionMaxBytes   int32
}

// FetchResponse represents a Fetch response
type FetchResponse struct {
	ThrottleTimeMs int32
	ErrorCode      ErrorCode
	SessionID      int32
	Responses      []FetchTopicResponse
}

// FetchTopicResponse represents a topic response in a Fetch response
type FetchTopicResponse struct {
	TopicName          string
	PartitionResponses []FetchPartitionResponse
}

// FetchPartitionResponse represents a partition response in a Fetch response
type FetchPartitionResponse struct {
	PartitionIndex        int32
	ErrorCode              ErrorCode
	HighWatermark          int64
	LastStableOffset       int64
	LogStartOffset         int64
	PreferredReadReplica   int32
	Records                []byte
}

// DecodeFetchRequest decodes a Fetch v16 request body.
func DecodeFetchRequest(r io.Reader, header *RequestHeader) (*FetchRequest, error) {
	req := &FetchRequest{Header: header}

	var err error
	if req.ReplicaID, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read replica_id: %w", err)
	}
	if req.MaxWaitMs, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read max_wait_ms: %w", err)
	}
	if req.MinBytes, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read min_bytes: %w", err)
	}
	if req.MaxBytes, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read max_bytes: %w", err)
	}
	if req.IsolationLevel, err = ReadInt8(r); err != nil {
		return nil, fmt.Errorf("read isolation_level: %w", err)
	}
	if req.SessionID, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read session_id: %w", err)
	}
	if req.SessionEpoch, err = ReadInt32(r); err != nil {
		return nil, fmt.Errorf("read session_epoch: %w", err)
	}

	topicCount, err := ReadCompactArrayLen(r)
	if err != nil {
		return nil, fmt.Errorf("read topics length: %w", err)
	}
	req.Topics = make([]FetchTopic, topicCount)
	for i := 0; i < topicCount; i++ {
		topicName, err := ReadCompactString(r)
		if err != nil {
			return nil, fmt.Errorf("read topic name: %w", err)
		}

		partitionCount, err := ReadCompactArrayLen(r)
		if err != nil {
			return nil, fmt.Errorf("read partitions length: %w", err)
		}
		partitions := make([]FetchPartition, partitionCount)
		for j := 0; j < partitionCount; j++ {
			p := FetchPartition{}
			if p.PartitionIndex, err = ReadInt32(r); err != nil {
				return nil, fmt.Errorf("read partition_index: %w", err)
			}
			if p.CurrentLeaderEpoch, err = ReadInt32(r); err != nil {
				return nil, fmt.Errorf("read current_leader_epoch: %w", err)
			}
			if p.FetchOffset, err = ReadInt64(r); err != nil {
				return nil, fmt.Errorf("read fetch_offset: %w", err)
			}
			if p.LastFetchedEpoch, err = ReadInt32(r); err != nil {
				return nil, fmt.Errorf("read last_fetched_epoch: %w", err)
			}
			if p.LogStartOffset, err = ReadInt64(r); err != nil {
				return nil, fmt.Errorf("read log_start_offset: %w", err)
			}
			if p.PartitionMaxBytes, err = ReadInt32(r); err != nil {
				return nil, fmt.Errorf("read partition_max_bytes: %w", err)
			}
			if err := ReadTagBuffer(r); err != nil {
				return nil, fmt.Errorf("read partition tag buffer: %w", err)
			}
			partitions[j] = p
		}
		if err := ReadTagBuffer(r); err != nil {
			return nil, fmt.Errorf("read topic tag buffer: %w", err)
		}

		req.Topics[i] = FetchTopic{TopicName: topicName, Partitions: partitions}
	}

	forgottenCount, err := ReadCompactArrayLen(r)
	if err != nil {
		return nil, fmt.Errorf("read forgotten_topics_data length: %w", err)
	}
	for i := 0; i < forgottenCount; i++ {
		if _, err := ReadCompactString(r); err != nil {
			return nil, fmt.Errorf("read forgotten topic name: %w", err)
		}
		n, err := ReadCompactArrayLen(r)
		if err != nil {
			return nil, fmt.Errorf("read forgotten partitions length: %w", err)
		}
		for j := 0; j < n; j++ {
			if _, err := ReadInt32(r); err != nil {
				return nil, fmt.Errorf("read forgotten partition index: %w", err)
			}
		}
		if err := ReadTagBuffer(r); err != nil {
			return nil, fmt.Errorf("read forgotten topic tag buffer: %w", err)
		}
	}

	if req.RackID, err = ReadCompactString(r); err != nil {
		return nil, fmt.Errorf("read rack_id: %w", err)
	}

	if err := ReadTagBuffer(r); err != nil {
		return nil, fmt.Errorf("read request tag buffer: %w", err)
	}

	return req, nil
}

// Encode encodes the Fetch v16 response body (correlation_id is written by
// the caller as part of the response header).
func (r *FetchResponse) Encode(w io.Writer) error {
	if err := WriteInt32(w, r.ThrottleTimeMs); err != nil {
		return err
	}
	if err := WriteInt16(w, int16(r.ErrorCode)); err != nil {
		return err
	}
	if err := WriteInt32(w, r.SessionID); err != nil {
		return err
	}

	if err := WriteCompactArrayLen(w, len(r.Responses)); err != nil {
		return err
	}
	for _, topicResp := range r.Responses {
		if err := WriteCompactString(w, topicResp.TopicName); err != nil {
			return err
		}
		if err := WriteCompactArrayLen(w, len(topicResp.PartitionResponses)); err != nil {
			return err
		}
		for _, partResp := range topicResp.PartitionResponses {
			if err := WriteInt32(w, partResp.PartitionIndex); err != nil {
				return err
			}
			if err := WriteInt16(w, int16(partResp.ErrorCode)); err != nil {
				return err
			}
			if err := WriteInt64(w, partResp.HighWatermark); err != nil {
				return err
			}
			if err := WriteInt64(w, partResp.LastStableOffset); err != nil {
				return err
			}
			if err := WriteInt64(w, partResp.LogStartOffset); err != nil {
				return err
			}
			if err := WriteCompactArrayLen(w, 0); err != nil { // aborted_transactions
				return err
			}
			if err := WriteInt32(w, partResp.PreferredReadReplica); err != nil {
				return err
			}
			if err := WriteCompactBytes(w, partResp.Records); err != nil {
				return err
			}
			if err := WriteTagBuffer(w); err != nil {
				return err
			}
		}
		if err := WriteTagBuffer(w); err != nil {
			return err
		}
	}

	return WriteTagBuffer(w)
}

// EncodeFetchResponse encodes just the body, for callers that want the raw
// bytes without an io.Writer.
func EncodeFetchResponse(r *FetchResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
