package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/jsonrpc"
	"github.com/fyrsmithlabs/mcpd/internal/router"
	"github.com/fyrsmithlabs/mcpd/internal/session"
)

// maxLineSize bounds a single stdio frame.
const maxLineSize = 4 << 20 // 4MB

// StdioServer speaks the protocol over line-delimited JSON: one message
// per line on stdin and stdout. Stderr carries logs only; nothing else may
// touch stdout.
type StdioServer struct {
	router *router.Router
	logger *zap.Logger

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// NewStdioServer creates a stdio transport reading from in and writing to
// out (normally os.Stdin and os.Stdout).
func NewStdioServer(rt *router.Router, in io.Reader, out io.Writer, logger *zap.Logger) (*StdioServer, error) {
	if rt == nil {
		return nil, fmt.Errorf("router is required")
	}
	if in == nil || out == nil {
		return nil, fmt.Errorf("input and output streams are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioServer{
		router: rt,
		logger: logger,
		in:     in,
		out:    out,
	}, nil
}

// Run processes frames until EOF on stdin or context cancellation.
// EOF triggers a graceful close of the single stdio session.
func (s *StdioServer) Run(ctx context.Context) error {
	id, err := session.NewID()
	if err != nil {
		return fmt.Errorf("minting session id: %w", err)
	}
	sess := session.New(id, session.DefaultRingSize)
	sess.SetOutbound(func(data []byte) {
		s.writeLine(data)
	})
	defer sess.Close(context.WithoutCancel(ctx))

	s.logger.Info("stdio transport ready", zap.String("session_id", sess.ID))

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stdio transport stopping", zap.Error(ctx.Err()))
			return nil

		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading stdin: %w", err)
					}
				default:
				}
				s.logger.Info("stdin closed, shutting down")
				return nil
			}
			if len(line) == 0 {
				continue
			}

			resp := s.router.Handle(ctx, sess, line)
			if resp == nil {
				continue
			}
			encoded, err := jsonrpc.Encode(resp)
			if err != nil {
				s.logger.Error("failed to encode response", zap.Error(err))
				continue
			}
			s.writeLine(encoded)
		}
	}
}

// writeLine emits one frame followed by a newline. Serialized so handler
// notifications and responses never interleave mid-line.
func (s *StdioServer) writeLine(data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Error("failed to write frame", zap.Error(err))
	}
}
