// Copyright 2025 Takhin Data, Inc.

package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// ApiVersionsRequest represents an ApiVersions request. v3+ is a flexible
// version: client software identification plus a terminal tag buffer.
type ApiVersionsRequest struct {
	ClientSoftwareName    string
	ClientSoftwareVersion string
}

// ApiVersionsResponse represents an ApiVersions response.
type ApiVersionsResponse struct {
	ErrorCode      ErrorCode
	APIVersions    []APIVersion
	ThrottleTimeMs int32
}

// APIVersion is one entry of the supported-API table: { api_key,
// min_version, max_version, tag_buffer }.
type APIVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// DecodeApiVersionsRequest decodes an ApiVersions request. Versions 0-2 are
// empty bodies; 3+ is flexible.
func DecodeApiVersionsRequest(r io.Reader, version int16) (*ApiVersionsRequest, error) {
	req := &ApiVersionsRequest{}
	if version < 3 {
		return req, nil
	}

	name, err := ReadCompactString(r)
	if err != nil {
		return nil, fmt.Errorf("read client_software_name: %w", err)
	}
	req.ClientSoftwareName = name

	ver, err := ReadCompactString(r)
	if err != nil {
		return nil, fmt.Errorf("read client_software_version: %w", err)
	}
	req.ClientSoftwareVersion = ver

	if err := ReadTagBuffer(r); err != nil {
		return nil, fmt.Errorf("read request tag buffer: %w", err)
	}

	return req, nil
}

// EncodeApiVersionsResponse encodes the v4 flexible response body (without
// the leading correlation_id, which belongs to the response header):
//
//	int16 error_code
//	compact_array<ApiKeyEntry>
//	int32 throttle_time_ms
//	int8  tag_buffer
func EncodeApiVersionsResponse(resp *ApiVersionsResponse, version int16) ([]byte, error) {
	var buf bytes.Buffer

	if err := WriteInt16(&buf, int16(resp.ErrorCode)); err != nil {
		return nil, err
	}

	if err := WriteCompactArrayLen(&buf, len(resp.APIVersions)); err != nil {
		return nil, err
	}
	for _, av := range resp.APIVersions {
		if err := WriteInt16(&buf, av.APIKey); err != nil {
			return nil, err
		}
		if err := WriteInt16(&buf, av.MinVersion); err != nil {
			return nil, err
		}
		if err := WriteInt16(&buf, av.MaxVersion); err != nil {
			return nil, err
		}
		if err := WriteTagBuffer(&buf); err != nil {
			return nil, err
		}
	}

	if err := WriteInt32(&buf, resp.ThrottleTimeMs); err != nil {
		return nil, err
	}

	if err := WriteTagBuffer(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeApiVersionsResponse decodes a v4 response body, mirroring
// EncodeApiVersionsResponse. Used by tests exercising the client side of
// the codec.
func DecodeApiVersionsResponse(r io.Reader, version int16) (*ApiVersionsResponse, error) {
	errorCode, err := ReadInt16(r)
	if err != nil {
		return nil, fmt.Errorf("read error_code: %w", err)
	}

	n, err := ReadCompactArrayLen(r)
	if err != nil {
		return nil, fmt.Errorf("read api_versions length: %w", err)
	}

	apiVersions := make([]APIVersion, n)
	for i := 0; i < n; i++ {
		apiKey, err := ReadInt16(r)
		if err != nil {
			return nil, fmt.Errorf("read api_key: %w", err)
		}
		minVersion, err := ReadInt16(r)
		if err != nil {
			return nil, fmt.Errorf("read min_version: %w", err)
		}
		maxVersion, err := ReadInt16(r)
		if err != nil {
			return nil, fmt.Errorf("read max_version: %w", err)
		}
		if err := ReadTagBuffer(r); err != nil {
			return nil, fmt.Errorf("read entry tag buffer: %w", err)
		}
		apiVersions[i] = APIVersion{APIKey: apiKey, MinVersion: minVersion, MaxVersion: maxVersion}
	}

	throttleTimeMs, err := ReadInt32(r)
	if err != nil {
		return nil, fmt.Errorf("read throttle_time_ms: %w", err)
	}

	if err := ReadTagBuffer(r); err != nil {
		return nil, fmt.Errorf("read response tag buffer: %w", err)
	}

	return &ApiVersionsResponse{
		ErrorCode:      ErrorCode(errorCode),
		APIVersions:    apiVersions,
		ThrottleTimeMs: throttleTimeMs,
	}, nil
}

// WriteApiVersionsResponse writes correlation_id followed by the encoded
// response body to w.
func WriteApiVersionsResponse(w io.Writer, header *RequestHeader, resp *ApiVersionsResponse) error {
	respData, err := EncodeApiVersionsResponse(resp, header.APIVersion)
	if err != nil {
		return err
	}
	if err := WriteInt32(w, header.CorrelationID); err != nil {
		return err
	}
	_, err = w.Write(respData)
	return err
}
