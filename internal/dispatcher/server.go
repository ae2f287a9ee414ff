// Package dispatcher implements the RequestDispatcher: a connection-per-
// client local-socket server that parses the fixed binary request header,
// invokes the cache, and returns results. One goroutine per accepted
// connection, a fixed 2 MiB per-connection scratch buffer, and a
// read_loop/write_loop pair that loops until the whole buffer is
// transferred. Interrupted system calls are retried inside the Go runtime;
// the loops themselves report only success or failure, so a clean peer
// close and a hard I/O error both end the worker the same way, without a
// log line.
package dispatcher

import (
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"bufferpoold/internal/cache"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ListenBacklog is the accept backlog reported in the startup log line. It
// is not applied to the socket: net.ListenUnix takes no backlog argument and
// uses the system's listen backlog (net.core.somaxconn on Linux).
const ListenBacklog = 1000

// worker tracks one live connection so the dispatcher can shut it down and
// join it during drain.
type worker struct {
	conn        *net.UnixConn
	threadIndex int
	connID      uuid.UUID
}

// Server owns the listening socket and the set of live per-connection
// workers.
type Server struct {
	socketPath string
	pool       cache.Pool
	logger     *log.Logger

	listener *net.UnixListener

	mu          sync.Mutex
	workers     map[*worker]struct{}
	threadCount atomic.Int64
	wg          sync.WaitGroup

	shuttingDown atomic.Bool
}

// New constructs a Server bound to socketPath, dispatching GET/SET requests
// to pool. The socket path is unlinked before bind.
func New(socketPath string, pool cache.Pool, logger *log.Logger) (*Server, error) {
	_ = os.Remove(socketPath)
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	ln.SetUnlinkOnClose(false)
	return &Server{
		socketPath: socketPath,
		pool:       pool,
		logger:     logger,
		listener:   ln,
		workers:    make(map[*worker]struct{}),
	}, nil
}

// Serve runs the accept loop until Drain is called or accept fails fatally.
// It returns once the accept loop has exited; it does not itself drain
// workers (call Drain from a signal handler, possibly concurrently with
// Serve still blocked in Accept).
func (s *Server) Serve() {
	s.logger.Printf("[Dispatcher] listening on %s (backlog >= %d)", s.socketPath, ListenBacklog)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				s.logger.Printf("[Dispatcher] accept loop exiting: shutdown in progress")
			} else {
				s.logger.Printf("[Dispatcher] accept failed: %v", err)
			}
			return
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}

		w := &worker{
			conn:        uc,
			threadIndex: int(s.threadCount.Add(1) - 1),
			connID:      uuid.New(),
		}
		s.mu.Lock()
		s.workers[w] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runWorker(w)
	}
}

// runWorker drives a single connection until the peer closes, a fatal I/O
// error occurs, or the connection is shut down from Drain. It always
// removes itself from the workers set and closes its socket on exit.
func (s *Server) runWorker(w *worker) {
	defer func() {
		s.mu.Lock()
		delete(s.workers, w)
		s.mu.Unlock()
		w.conn.Close()
		s.pool.ShowHitRate(s.logger)
		s.wg.Done()
	}()

	scratch := make([]byte, MaxPageSize)
	headerBuf := make([]byte, HeaderSize)
	ackBuf := make([]byte, 4)

	for {
		if ok := readLoop(w.conn, headerBuf); !ok {
			return
		}
		h := decodeHeader(headerBuf)

		switch h.MsgType {
		case MsgSet:
			if h.PageSize > MaxPageSize {
				s.logger.Printf("[Dispatcher] conn=%s page_size %d exceeds max, closing connection", w.connID, h.PageSize)
				return
			}
			if ok := readLoop(w.conn, scratch[:h.PageSize]); !ok {
				return
			}
			if err := s.pool.WritePage(h.PageNo, h.PageSize, scratch[:h.PageSize], w.threadIndex); err != nil {
				s.logger.Printf("[Dispatcher] conn=%s SET page=%d rejected: %v", w.connID, h.PageNo, err)
				continue
			}
			encodeSize(ackBuf, h.PageSize)
			if ok := writeLoop(w.conn, ackBuf); !ok {
				return
			}

		case MsgGet:
			if h.PageSize > MaxPageSize {
				s.logger.Printf("[Dispatcher] conn=%s page_size %d exceeds max, closing connection", w.connID, h.PageSize)
				return
			}
			if err := s.pool.ReadPage(h.PageNo, h.PageSize, scratch[:h.PageSize], w.threadIndex); err != nil {
				s.logger.Printf("[Dispatcher] conn=%s GET page=%d rejected: %v", w.connID, h.PageNo, err)
				continue
			}
			encodeSize(ackBuf, h.PageSize)
			if ok := writeLoop(w.conn, ackBuf); !ok {
				return
			}
			if ok := writeLoop(w.conn, scratch[:h.PageSize]); !ok {
				return
			}

		default:
			s.logger.Printf("[Dispatcher] conn=%s %v: %d, continuing", w.connID, ErrInvalidMsgType, h.MsgType)
		}
	}
}

// LogHitRate logs the pool's current hit rate, supplementing the
// disconnect-triggered call in runWorker with an operator-visible periodic
// line for long-lived connections.
func (s *Server) LogHitRate() {
	s.pool.ShowHitRate(s.logger)
}

// Drain performs the shutdown sequence: stop accepting, shut down every
// live worker's socket so its blocked read returns, join all workers, then
// unlink the socket file. Drain closes the workers' sockets concurrently
// through an errgroup, then joins the workers on the server's WaitGroup.
func (s *Server) Drain() {
	s.shuttingDown.Store(true)
	s.listener.Close()

	s.mu.Lock()
	live := make([]*worker, 0, len(s.workers))
	for w := range s.workers {
		live = append(live, w)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, w := range live {
		w := w
		g.Go(func() error {
			w.conn.Close()
			return nil
		})
	}
	_ = g.Wait()

	s.wg.Wait()
	os.Remove(s.socketPath)
	s.logger.Printf("[Dispatcher] drained, socket unlinked")
}

// readLoop repeats Read until len(buf) bytes have been read, returning
// false on clean peer close or a hard error.
func readLoop(r io.Reader, buf []byte) bool {
	for total := 0; total < len(buf); {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) && total == len(buf) {
				return true
			}
			return false
		}
		if n == 0 && err == nil {
			return false
		}
	}
	return true
}

// writeLoop repeats Write until len(buf) bytes have been written, returning
// false on a hard error.
func writeLoop(w io.Writer, buf []byte) bool {
	for total := 0; total < len(buf); {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return false
		}
		if n == 0 {
			return false
		}
	}
	return true
}
