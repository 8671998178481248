// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/novatechflow/kraftlog/pkg/protocol"
)

// DefaultWriteTimeout bounds how long a response write may block.
const DefaultWriteTimeout = 5 * time.Second

// Handler processes parsed Kafka protocol requests and returns the complete
// size-prefixed response. A nil response sends nothing.
type Handler interface {
	Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error)
}

// Server accepts Kafka connections and serves each one on a worker from a
// bounded pool. Requests on one connection are handled strictly in order.
type Server struct {
	Addr    string
	Handler Handler
	// Workers is the number of connections served at once. Zero means
	// runtime.NumCPU(). Further connections wait in the queue.
	Workers      int
	WriteTimeout time.Duration
	Logger       *slog.Logger

	listener net.Listener
	pool     *workerPool
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closing  bool
	ready    chan struct{}
	once     sync.Once
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) readyCh() chan struct{} {
	s.once.Do(func() { s.ready = make(chan struct{}) })
	return s.ready
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.readyCh()
}

// ListenAndServe binds Addr and accepts connections until ctx is canceled.
// Bind errors are returned; accept errors are logged and retried.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Handler == nil {
		return errors.New("broker.Server requires a Handler")
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.Handler == nil {
		return errors.New("broker.Server requires a Handler")
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s.mu.Lock()
	s.listener = ln
	s.pool = newWorkerPool(workers)
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	close(s.readyCh())
	s.logger().Info("broker listening", "addr", ln.Addr().String(), "workers", workers)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()
	defer s.shutdown()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger().Warn("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0
		acceptedConnections.Inc()
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		c := conn
		if !s.pool.Submit(func() { s.serveConn(ctx, c) }) {
			s.untrack(c)
			_ = c.Close()
		}
	}
}

// shutdown stops the pool and unblocks idle connections. A request that is
// already being handled completes and its response is written.
func (s *Server) shutdown() {
	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	pool := s.pool
	s.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Wait blocks until all connection workers exit after shutdown.
func (s *Server) Wait() {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if pool != nil {
		pool.Wait()
	}
}

// ListenAddress returns the actual listener address if the server has started.
func (s *Server) ListenAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	if ctx.Err() != nil {
		_ = conn.Close()
		return
	}
	s.handleConnection(ctx, conn)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	openConnections.Inc()
	defer openConnections.Dec()
	defer conn.Close()
	logger := s.logger().With("remote", remoteAddr(conn))
	writeTimeout := s.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			connectionErrors.WithLabelValues("read").Inc()
			logger.Warn("read frame failed", "error", err)
			return
		}
		header, req, err := protocol.ParseRequest(frame.Payload)
		if err != nil {
			connectionErrors.WithLabelValues("parse").Inc()
			logger.Warn("parse request failed", "error", err, "bytes", len(frame.Payload))
			return
		}
		resp, err := s.Handler.Handle(ctx, header, req)
		if err != nil {
			connectionErrors.WithLabelValues("handle").Inc()
			logger.Error("handle request failed", "error", err, "api_key", header.APIKey, "correlation", header.CorrelationID)
			return
		}
		if resp == nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(resp); err != nil {
			connectionErrors.WithLabelValues("write").Inc()
			logger.Warn("write response failed", "error", err, "bytes", len(resp))
			return
		}
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
