// Copyright 2025 Takhin Data, Inc.

package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/driftlog/driftlog/pkg/config"
	"github.com/driftlog/driftlog/pkg/kafka/handler"
	"github.com/driftlog/driftlog/pkg/kafka/protocol"
	"github.com/driftlog/driftlog/pkg/kafkaerr"
	"github.com/driftlog/driftlog/pkg/logger"
	"github.com/driftlog/driftlog/pkg/storage/topic"
	"github.com/driftlog/driftlog/pkg/throttle"
)

// defaultMaxMessageBytes bounds a single request frame when the config
// leaves max.message.bytes at its zero value.
const defaultMaxMessageBytes = 100 * 1024 * 1024

// errInvalidMessageSize is returned (and the connection closed) when a
// frame's declared size is non-positive or exceeds the configured limit.
var errInvalidMessageSize = kafkaerr.New(kafkaerr.InvalidMessageSize, nil)

// Server represents a Kafka protocol server
type Server struct {
	config   *config.Config
	handler  *handler.Handler
	logger   logger.Logger
	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// connSlots bounds the number of connections accepted concurrently, per
	// §5's guidance to bound the accept queue.
	connSlots chan struct{}

	// throttler rate-limits bytes written back to fetching consumers.
	throttler *throttle.Throttler
}

// New creates a new Kafka server
func New(cfg *config.Config, topicMgr *topic.Manager) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	maxConns := cfg.Kafka.MaxConnections
	if maxConns <= 0 {
		maxConns = 1024
	}

	return &Server{
		config:  cfg,
		handler: handler.New(cfg, topicMgr),
		logger:  *logger.Default().WithComponent("kafka-server"),
		ctx:     ctx,
		cancel:  cancel,
		throttler: throttle.New(&throttle.Config{
			ProducerBytesPerSecond: cfg.Throttle.Producer.BytesPerSecond,
			ProducerBurst:          cfg.Throttle.Producer.Burst,
			ConsumerBytesPerSecond: cfg.Throttle.Consumer.BytesPerSecond,
			ConsumerBurst:          cfg.Throttle.Consumer.Burst,
			DynamicEnabled:         cfg.Throttle.Dynamic.Enabled,
			DynamicCheckInterval:   cfg.Throttle.Dynamic.CheckIntervalMs,
			DynamicMinRate:         cfg.Throttle.Dynamic.MinRate,
			DynamicMaxRate:         cfg.Throttle.Dynamic.MaxRate,
			DynamicTargetUtilPct:   cfg.Throttle.Dynamic.TargetUtilPct,
			DynamicAdjustmentStep:  cfg.Throttle.Dynamic.AdjustmentStep,
		}),
		connSlots: make(chan struct{}, maxConns),
	}
}

// Start starts the Kafka server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Kafka.AdvertisedHost, s.config.Kafka.AdvertisedPort)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Info("kafka server started", "address", addr)

	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return nil
}

// acceptLoop accepts incoming connections, blocking on connSlots once the
// configured connection limit is reached.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("failed to accept connection", "error", err)
				continue
			}
		}

		select {
		case s.connSlots <- struct{}{}:
		case <-s.ctx.Done():
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.connSlots }()
			s.handleConnection(conn)
		}()
	}
}

// wrapReadErr tags a frame-read failure as UnexpectedEOF when the peer
// closed mid-frame, or IO for anything else (reset, timeout, OS error).
func wrapReadErr(err error) error {
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return kafkaerr.New(kafkaerr.UnexpectedEOF, err)
	}
	return kafkaerr.New(kafkaerr.IO, err)
}

func (s *Server) maxMessageBytes() int32 {
	if s.config.Kafka.MaxMessageBytes > 0 {
		return int32(s.config.Kafka.MaxMessageBytes)
	}
	return defaultMaxMessageBytes
}

// handleConnection reads length-prefixed requests from conn until the
// connection closes or a framing error forces it shut.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	s.logger.Info("new connection", "remote", conn.RemoteAddr())

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		sizeBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, sizeBuf); err != nil {
			if err != io.EOF {
				s.logger.Error("failed to read message size", "error", wrapReadErr(err))
			}
			return
		}

		size := int32(binary.BigEndian.Uint32(sizeBuf))
		if size <= 0 || size > s.maxMessageBytes() {
			s.logger.Error("rejecting connection",
				"error", errInvalidMessageSize, "size", size, "max", s.maxMessageBytes())
			return
		}

		msgBuf := make([]byte, size)
		if _, err := io.ReadFull(conn, msgBuf); err != nil {
			s.logger.Error("failed to read message", "error", wrapReadErr(err))
			return
		}

		if len(msgBuf) >= 2 {
			apiKey := protocol.APIKey(int16(msgBuf[0])<<8 | int16(msgBuf[1]))
			if apiKey == protocol.FetchKey {
				if err := s.handler.HandleFetchZeroCopy(msgBuf, conn); err != nil {
					s.logger.Error("failed to handle fetch with zero-copy", "error", err)
					return
				}
				continue
			}
		}

		resp, err := s.handler.HandleRequest(msgBuf)
		if err != nil {
			s.logger.Error("failed to handle request", "error", err)
			return
		}

		if err := s.throttler.AllowConsumer(s.ctx, len(resp)); err != nil {
			s.logger.Error("consumer throttle wait interrupted", "error", err)
			return
		}

		respSizeBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(respSizeBuf, uint32(len(resp)))
		if _, err := conn.Write(respSizeBuf); err != nil {
			s.logger.Error("failed to write response size", "error", err)
			return
		}
		if _, err := conn.Write(resp); err != nil {
			s.logger.Error("failed to write response", "error", err)
			return
		}
	}
}

// Stop stops the Kafka server
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	if err := s.throttler.Close(); err != nil {
		s.logger.Error("failed to close throttler", "error", err)
	}
	s.logger.Info("kafka server stopped")
}
