// Copyright 2025 Takhin Data, Inc.

package handler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/driftlog/driftlog/pkg/kafka/protocol"
)

// getSupportedAPIVersions returns the version table advertised over the
// wire: ApiVersions and Fetch are the only api_keys this broker dispatches.
func (h *Handler) getSupportedAPIVersions() []protocol.APIVersion {
	return []protocol.APIVersion{
		{APIKey: int16(protocol.FetchKey), MinVersion: 0, MaxVersion: 16},
		{APIKey: int16(protocol.ApiVersionsKey), MinVersion: 0, MaxVersion: 4},
	}
}

// isVersionSupported reports whether apiVersion falls within the advertised
// [MinVersion, MaxVersion] range for apiKey. An apiKey this broker does not
// dispatch at all is also unsupported.
func (h *Handler) isVersionSupported(apiKey, apiVersion int16) bool {
	for _, api := range h.getSupportedAPIVersions() {
		if api.APIKey == apiKey {
			return apiVersion >= api.MinVersion && apiVersion <= api.MaxVersion
		}
	}
	return false
}

// handleApiVersions handles ApiVersions requests. The request body (client
// software name/version on v3+) is informational only and is discarded
// without decoding, matching the wire contract that a connection need not
// interpret a request body beyond what it acts on. A requested api_version
// outside the advertised range for ApiVersions itself gets UnsupportedVersion
// back with the full version table still attached, so the client can
// renegotiate.
func (h *Handler) handleApiVersions(reader io.Reader, header *protocol.RequestHeader) ([]byte, error) {
	apiVersions := h.getSupportedAPIVersions()

	errorCode := protocol.None
	if !h.isVersionSupported(int16(protocol.ApiVersionsKey), header.APIVersion) {
		errorCode = protocol.UnsupportedVersion
	}

	resp := &protocol.ApiVersionsResponse{
		ErrorCode:      errorCode,
		APIVersions:    apiVersions,
		ThrottleTimeMs: 0,
	}

	var buf bytes.Buffer
	if err := protocol.WriteApiVersionsResponse(&buf, header, resp); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}

	return buf.Bytes(), nil
}
