// Copyright 2025 Takhin Data, Inc.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// APIKey represents a Kafka API key
type APIKey int16

// Kafka API Keys
const (
	ProduceKey            APIKey = 0
	FetchKey              APIKey = 1
	ListOffsetsKey        APIKey = 2
	MetadataKey           APIKey = 3
	LeaderAndIsrKey       APIKey = 4
	StopReplicaKey        APIKey = 5
	UpdateMetadataKey     APIKey = 6
	ControlledShutdownKey APIKey = 7
	OffsetCommitKey       APIKey = 8
	OffsetFetchKey        APIKey = 9
	FindCoordinatorKey    APIKey = 10
	JoinGroupKey          APIKey = 11
	HeartbeatKey          APIKey = 12
	LeaveGroupKey         APIKey = 13
	SyncGroupKey          APIKey = 14
	DescribeGroupsKey     APIKey = 15
	ListGroupsKey         APIKey = 16
	SaslHandshakeKey      APIKey = 17
	ApiVersionsKey        APIKey = 18
	CreateTopicsKey       APIKey = 19
	DeleteTopicsKey       APIKey = 20
	DeleteRecordsKey      APIKey = 21
	InitProducerIDKey     APIKey = 22
	AddPartitionsToTxnKey APIKey = 24
	AddOffsetsToTxnKey    APIKey = 25
	EndTxnKey             APIKey = 26
	WriteTxnMarkersKey    APIKey = 27
	TxnOffsetCommitKey    APIKey = 28
	DescribeConfigsKey    APIKey = 32
	AlterConfigsKey       APIKey = 33
	DescribeLogDirsKey    APIKey = 35
	SaslAuthenticateKey   APIKey = 36
)

// ErrorCode represents a Kafka error code
type ErrorCode int16

// Kafka Error Codes
const (
	None                               ErrorCode = 0
	OffsetOutOfRange                   ErrorCode = 1
	CorruptMessage                     ErrorCode = 2
	UnknownTopicOrPartition            ErrorCode = 3
	InvalidFetchSize                   ErrorCode = 4
	LeaderNotAvailable                 ErrorCode = 5
	NotLeaderForPartition              ErrorCode = 6
	RequestTimedOut                    ErrorCode = 7
	BrokerNotAvailable                 ErrorCode = 8
	ReplicaNotAvailable                ErrorCode = 9
	MessageTooLarge                    ErrorCode = 10
	StaleControllerEpoch               ErrorCode = 11
	OffsetMetadataTooLarge             ErrorCode = 12
	NetworkException                   ErrorCode = 13
	CoordinatorLoadInProgress          ErrorCode = 14
	CoordinatorNotAvailable            ErrorCode = 15
	NotCoordinator                     ErrorCode = 16
	InvalidTopicException              ErrorCode = 17
	RecordListTooLarge                 ErrorCode = 18
	NotEnoughReplicas                  ErrorCode = 19
	NotEnoughReplicasAfterAppend       ErrorCode = 20
	InvalidRequiredAcks                ErrorCode = 21
	IllegalGeneration                  ErrorCode = 22
	InconsistentGroupProtocol          ErrorCode = 23
	InvalidGroupID                     ErrorCode = 24
	UnknownMemberID                    ErrorCode = 25
	InvalidSessionTimeout              ErrorCode = 26
	RebalanceInProgress                ErrorCode = 27
	InvalidCommitOffsetSize            ErrorCode = 28
	TopicAuthorizationFailed           ErrorCode = 29
	GroupAuthorizationFailed           ErrorCode = 30
	ClusterAuthorizationFailed         ErrorCode = 31
	InvalidTimestamp                   ErrorCode = 32
	UnsupportedSaslMechanism           ErrorCode = 33
	IllegalSaslState                   ErrorCode = 34
	UnsupportedVersion                 ErrorCode = 35
	TopicAlreadyExists                 ErrorCode = 36
	InvalidPartitions                  ErrorCode = 37
	InvalidReplicationFactor           ErrorCode = 38
	InvalidReplicaAssignment           ErrorCode = 39
	InvalidConfig                      ErrorCode = 40
	NotController                      ErrorCode = 41
	InvalidRequest                     ErrorCode = 42
	UnsupportedForMessageFormat        ErrorCode = 43
	PolicyViolation                    ErrorCode = 44
	OutOfOrderSequenceNumber           ErrorCode = 45
	DuplicateSequenceNumber            ErrorCode = 46
	InvalidProducerEpoch               ErrorCode = 47
	InvalidTxnState                    ErrorCode = 48
	InvalidProducerIDMapping           ErrorCode = 49
	InvalidTransactionTimeout          ErrorCode = 50
	ConcurrentTransactions             ErrorCode = 51
	TransactionCoordinatorFenced       ErrorCode = 52
	TransactionalIDAuthorizationFailed ErrorCode = 53
	SecurityDisabled                   ErrorCode = 54
	OperationNotAttempted              ErrorCode = 55
	KafkaStorageError                  ErrorCode = 56
	LogDirNotFound                     ErrorCode = 57
	SaslAuthenticationFailed           ErrorCode = 58
	UnknownProducerID                  ErrorCode = 59
	ReassignmentInProgress             ErrorCode = 60
	DelegationTokenAuthDisabled        ErrorCode = 61
	DelegationTokenNotFound            ErrorCode = 62
	DelegationTokenOwnerMismatch       ErrorCode = 63
	DelegationTokenRequestNotAllowed   ErrorCode = 64
	DelegationTokenAuthorizationFailed ErrorCode = 65
	DelegationTokenExpired             ErrorCode = 66
	InvalidPrincipalType               ErrorCode = 67
	NonEmptyGroup                      ErrorCode = 68
	GroupIDNotFound                    ErrorCode = 69
	FetchSessionIDNotFound             ErrorCode = 70
	InvalidFetchSessionEpoch           ErrorCode = 71
	ListenerNotFound                   ErrorCode = 72
	TopicDeletionDisabled              ErrorCode = 73
	FencedLeaderEpoch                  ErrorCode = 74
	UnknownLeaderEpoch                 ErrorCode = 75
	UnsupportedCompressionType         ErrorCode = 76
)

// RequestHeader represents the request header. Per §4.6's framing, the
// header is exactly api_key, api_version, correlation_id — there is no
// client_id field in this wire format.
type RequestHeader struct {
	APIKey        APIKey
	APIVersion    int16
	CorrelationID int32
}

// ResponseHeader represents the response header
type ResponseHeader struct {
	CorrelationID int32
}

// WriteInt8 writes an int8 to the writer
func WriteInt8(w io.Writer, v int8) error {
	return binary.Write(w, binary.BigEndian, v)
}

// WriteInt16 writes an int16 to the writer
func WriteInt16(w io.Writer, v int16) error {
	return binary.Write(w, binary.BigEndian, v)
}

// WriteInt32 writes an int32 to the writer
func WriteInt32(w io.Writer, v int32) error {
	return binary.Write(w, binary.BigEndian, v)
}

// WriteInt64 writes an int64 to the writer
func WriteInt64(w io.Writer, v int64) error {
	return binary.Write(w, binary.BigEndian, v)
}

// ReadInt8 reads an int8 from the reader
func ReadInt8(r io.Reader) (int8, error) {
	var v int8
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// ReadInt16 reads an int16 from the reader
func ReadInt16(r io.Reader) (int16, error) {
	var v int16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// ReadInt32 reads an int32 from the reader
func ReadInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// ReadInt64 reads an int64 from the reader
func ReadInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// DecodeRequestHeader decodes a request header
func DecodeRequestHeader(r io.Reader) (*RequestHeader, error) {
	apiKey, err := ReadInt16(r)
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}

	apiVersion, err := ReadInt16(r)
	if err != nil {
		return nil, fmt.Errorf("read api version: %w", err)
	}

	correlationID, err := ReadInt32(r)
	if err != nil {
		return nil, fmt.Errorf("read correlation id: %w", err)
	}

	return &RequestHeader{
		APIKey:        APIKey(apiKey),
		APIVersion:    apiVersion,
		CorrelationID: correlationID,
	}, nil
}

// Encode encodes the request header
func (h *RequestHeader) Encode(w io.Writer) error {
	if err := WriteInt16(w, int16(h.APIKey)); err != nil {
		return err
	}
	if err := WriteInt16(w, h.APIVersion); err != nil {
		return err
	}
	return WriteInt32(w, h.CorrelationID)
}

// Encode encodes the response header
func (h *ResponseHeader) Encode(w io.Writer) error {
	return WriteInt32(w, h.CorrelationID)
}

// Flexible-version helpers: unsigned varints, compact arrays/strings, and
// the terminal tag buffer used by ApiVersions v4+ and Fetch v16.

// WriteUvarint writes an unsigned base-128 varint, little-endian group order
// (the protocol's compact-encoding convention).
func WriteUvarint(w io.Writer, v uint32) error {
	var buf [5]byte
	n := binary.PutUvarint(buf[:], uint64(v))
	_, err := w.Write(buf[:n])
	return err
}

// ReadUvarint reads an unsigned base-128 varint.
func ReadUvarint(r io.Reader) (uint32, error) {
	var v uint32
	var shift uint
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		b := one[0]
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > 28 {
			return 0, fmt.Errorf("uvarint overflow")
		}
	}
}

// WriteCompactArrayLen writes a compact array length: N+1 as an unsigned
// varint (a single byte for N <= 126). There is no separate null form: the
// null marker 0 is written only when n is -1.
func WriteCompactArrayLen(w io.Writer, n int) error {
	return WriteUvarint(w, uint32(n+1))
}

// ReadCompactArrayLen reads a compact array length and returns N (0 for a
// null array, matching the encoder's convention of never emitting null).
func ReadCompactArrayLen(r io.Reader) (int, error) {
	v, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, nil
	}
	return int(v - 1), nil
}

// WriteCompactString writes a compact string: (len+1) varint, then bytes.
func WriteCompactString(w io.Writer, s string) error {
	if err := WriteCompactArrayLen(w, len(s)); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// ReadCompactString reads a compact string.
func ReadCompactString(r io.Reader) (string, error) {
	n, err := ReadCompactArrayLen(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteCompactBytes writes a compact byte array: (len+1) varint, then bytes.
func WriteCompactBytes(w io.Writer, b []byte) error {
	if err := WriteCompactArrayLen(w, len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadCompactBytes reads a compact byte array.
func ReadCompactBytes(r io.Reader) ([]byte, error) {
	n, err := ReadCompactArrayLen(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTagBuffer writes the terminal empty tagged-field buffer: a single
// zero byte, used everywhere a flexible-version schema has no tagged fields.
func WriteTagBuffer(w io.Writer) error {
	return WriteInt8(w, 0)
}

// ReadTagBuffer reads a tagged-field buffer, discarding any tagged fields
// present (none of this broker's schemas define any).
func ReadTagBuffer(r io.Reader) error {
	n, err := ReadUvarint(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := ReadUvarint(r); err != nil { // tag
			return err
		}
		size, err := ReadUvarint(r)
		if err != nil {
			return err
		}
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return err
		}
	}
	return nil
}
