// Package server is the out-of-process RPC surface over pkg/flowdb,
// framed with internal/channel's length-prefixed wire format — the
// same "length frame before body, reader waits for a full frame"
// discipline spec.md §6's Cross-domain wire format paragraph mandates
// for inter-domain packets applies here too, since this is just
// another 1:1 channel multiplexed by connection rather than by tag.
package server

import (
	"bufio"
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"storj.io/flowdb/internal/channel"
	"storj.io/flowdb/pkg/flowdb"
)

// Server accepts connections and serves Write/Lookup requests against
// engine. A subscribe request is logged and gets no response.
type Server struct {
	engine *flowdb.Engine
	log    *zap.Logger
}

// New returns a Server for engine.
func New(engine *flowdb.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, log: log}
}

// Serve accepts connections on lis until ctx is done or lis.Accept
// fails, handling each on its own goroutine.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	buf := channel.NewBuffer(conn, 0) // flush every response immediately

	for {
		f, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("connection read error", zap.Error(err))
			}
			return
		}
		resp, ok := s.dispatch(f)
		if !ok {
			continue
		}
		if err := buf.Write(resp); err != nil {
			s.log.Debug("connection write error", zap.Error(err))
			return
		}
	}
}

// readFrame reads exactly one channel.Frame from r, growing its
// internal buffer until channel.ParseFrame reports a complete frame —
// the stream-level counterpart of channel.ParseFrame's all-at-once
// contract.
func readFrame(r *bufio.Reader) (channel.Frame, error) {
	var acc []byte
	chunk := make([]byte, 4096)
	for {
		rem, f, ok, err := channel.ParseFrame(acc)
		if err != nil {
			return channel.Frame{}, err
		}
		if ok {
			_ = rem // one frame per request on this connection's framing discipline
			return f, nil
		}
		n, err := r.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
		}
		if err != nil {
			if n == 0 {
				return channel.Frame{}, err
			}
		}
	}
}

func (s *Server) dispatch(f channel.Frame) (channel.Frame, bool) {
	switch f.Header.Info.Kind {
	case kindWriteReq:
		return s.handleWrite(f), true
	case kindLookupReq:
		return s.handleLookup(f), true
	case kindSubscribeReq:
		s.log.Warn("subscribe over this connection type is not supported; use a dedicated stream")
		return channel.Frame{}, false
	default:
		s.log.Warn("unknown rpc frame kind", zap.String("kind", f.Header.Info.Kind))
		return channel.Frame{}, false
	}
}

func (s *Server) handleWrite(f channel.Frame) channel.Frame {
	var req writeRequest
	if err := decodeValue(f.Data, &req); err != nil {
		body, _ := encodeValue(writeResponse{Err: err.Error()})
		return frame(kindWriteResp, body)
	}
	ack, err := s.engine.Write(req.Base, req.Rows, req.Token)
	body, _ := encodeValue(ackToResponse(ack, err))
	return frame(kindWriteResp, body)
}

func (s *Server) handleLookup(f channel.Frame) channel.Frame {
	var req lookupRequest
	if err := decodeValue(f.Data, &req); err != nil {
		body, _ := encodeValue(lookupResponse{Err: err.Error()})
		return frame(kindLookupResp, body)
	}
	res, err := s.engine.Lookup(req.View, req.Key)
	body, _ := encodeValue(lookupToResponse(res, err))
	return frame(kindLookupResp, body)
}
