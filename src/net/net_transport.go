package net

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// frame is the unit written on streams. Src is the advertised address of the
// sender.
type frame struct {
	Src     string
	Payload []byte
}

/*
StreamComm provides a network based Comm used to communicate with nodes on
remote machines. It requires an underlying stream layer to provide a stream
abstraction, which can be simple TCP, TLS, etc.

Messages are one-way: each one is a msgpack encoded frame carrying the
sender's advertised address and the payload. Outbound connections are pooled
per target and reused for subsequent messages.
*/
type StreamComm struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	inbox *Inbox

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewStreamComm creates a new StreamComm with the given dialer and listener.
// The maxPool controls how many connections we will pool (per target). The
// timeout is used to apply I/O deadlines when the caller's context has none.
// The capacity bounds the inbox.
func NewStreamComm(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	capacity int,
	logger *logrus.Entry,
) *StreamComm {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &StreamComm{
		connPool:   make(map[string][]*netConn),
		inbox:      NewInbox(capacity, logger),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *StreamComm) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connPoolLock.Lock()
		for _, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
		}
		n.connPool = make(map[string][]*netConn)
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Comm interface.
func (n *StreamComm) Consumer() <-chan Incoming {
	return n.inbox.C()
}

// LocalAddr implements the Comm interface. It returns the advertised address.
func (n *StreamComm) LocalAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *StreamComm) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *StreamComm) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *StreamComm) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	netConn.enc = codec.NewEncoder(netConn.w, common.MsgpackHandle())

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *StreamComm) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Send implements the Comm interface.
func (n *StreamComm) Send(ctx context.Context, target string, msg []byte) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(n.timeout)
	}

	conn, err := n.getConn(target, time.Until(deadline))
	if err != nil {
		return common.NewError(common.PeerUnreachable, "%s: %v", target, err)
	}

	conn.conn.SetWriteDeadline(deadline)

	if err := sendFrame(conn, frame{Src: n.LocalAddr(), Payload: msg}); err != nil {
		return common.NewError(common.PeerUnreachable, "%s: %v", target, err)
	}

	n.returnConn(conn)

	return nil
}

// sendFrame is used to encode and send a frame. The connection is released on
// error.
func sendFrame(conn *netConn, f frame) error {
	if err := conn.enc.Encode(f); err != nil {
		conn.Release()
		return err
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// Listen opens the stream and handles incoming connections.
func (n *StreamComm) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *StreamComm) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	dec := codec.NewDecoder(r, common.MsgpackHandle())

	for {
		if err := n.handleFrame(dec); err != nil {
			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Debug("Stopped reading connection")
			} else if err != io.EOF {
				n.logger.WithField("error", err).Error("Failed to decode incoming frame")
			}
			return
		}
	}
}

// handleFrame is used to decode a single frame and push it to the inbox.
func (n *StreamComm) handleFrame(dec *codec.Decoder) error {
	var f frame
	if err := dec.Decode(&f); err != nil {
		return err
	}

	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	n.inbox.Push(Incoming{Src: f.Src, Bytes: f.Payload})

	return nil
}
