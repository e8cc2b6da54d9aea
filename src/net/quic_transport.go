package net

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	quic "github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

const (
	quicProtocol = "safe-node"

	// maxQuicMsgSize bounds the bytes read from a single stream.
	maxQuicMsgSize = 16 << 20
)

// QuicComm implements the Comm interface over QUIC. Each message travels on
// its own unidirectional use of a bidirectional stream: the sender writes the
// encoded frame and closes its side. One connection per peer is kept open and
// reused.
type QuicComm struct {
	logger *logrus.Entry

	listener  *quic.Listener
	advertise string
	serverTLS *tls.Config
	clientTLS *tls.Config
	quicConf  *quic.Config
	timeout   time.Duration

	connsLock sync.Mutex
	conns     map[string]quic.Connection

	inbox *Inbox

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQuicComm binds a QUIC listener on bindAddr and starts accepting
// connections. Certificates are self-signed and not verified; peers are
// authenticated by the signatures carried in messages.
func NewQuicComm(
	bindAddr string,
	advertise string,
	timeout time.Duration,
	capacity int,
	logger *logrus.Entry,
) (*QuicComm, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}

	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicProtocol},
	}
	clientTLS := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicProtocol},
	}
	quicConf := &quic.Config{
		MaxIdleTimeout:       5 * time.Minute,
		KeepAlivePeriod:      30 * time.Second,
		HandshakeIdleTimeout: timeout,
	}

	listener, err := quic.ListenAddr(bindAddr, serverTLS, quicConf)
	if err != nil {
		return nil, err
	}

	if advertise == "" {
		advertise = listener.Addr().String()
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &QuicComm{
		logger:    logger,
		listener:  listener,
		advertise: advertise,
		serverTLS: serverTLS,
		clientTLS: clientTLS,
		quicConf:  quicConf,
		timeout:   timeout,
		conns:     make(map[string]quic.Connection),
		inbox:     NewInbox(capacity, logger),
		ctx:       ctx,
		cancel:    cancel,
	}

	go q.listen()

	return q, nil
}

// LocalAddr implements the Comm interface.
func (q *QuicComm) LocalAddr() string {
	return q.advertise
}

// Consumer implements the Comm interface.
func (q *QuicComm) Consumer() <-chan Incoming {
	return q.inbox.C()
}

// Send implements the Comm interface.
func (q *QuicComm) Send(ctx context.Context, addr string, msg []byte) error {
	if q.ctx.Err() != nil {
		return ErrTransportShutdown
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	conn, err := q.getConn(ctx, addr)
	if err != nil {
		return common.NewError(common.PeerUnreachable, "%s: %v", addr, err)
	}

	if err := q.writeFrame(ctx, conn, msg); err != nil {
		q.dropConn(addr, conn)
		return common.NewError(common.PeerUnreachable, "%s: %v", addr, err)
	}

	return nil
}

func (q *QuicComm) writeFrame(ctx context.Context, conn quic.Connection, msg []byte) error {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return err
	}

	data, err := common.EncodeMsgpack(frame{Src: q.advertise, Payload: msg})
	if err != nil {
		stream.CancelWrite(0)
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(deadline)
	}

	if _, err := stream.Write(data); err != nil {
		stream.CancelWrite(0)
		return err
	}

	return stream.Close()
}

func (q *QuicComm) getConn(ctx context.Context, addr string) (quic.Connection, error) {
	q.connsLock.Lock()
	conn, ok := q.conns[addr]
	q.connsLock.Unlock()

	if ok && conn.Context().Err() == nil {
		return conn, nil
	}

	conn, err := quic.DialAddr(ctx, addr, q.clientTLS, q.quicConf)
	if err != nil {
		return nil, err
	}

	q.connsLock.Lock()
	if existing, ok := q.conns[addr]; ok && existing.Context().Err() == nil {
		q.connsLock.Unlock()
		conn.CloseWithError(0, "")
		return existing, nil
	}
	q.conns[addr] = conn
	q.connsLock.Unlock()

	return conn, nil
}

func (q *QuicComm) dropConn(addr string, conn quic.Connection) {
	q.connsLock.Lock()
	defer q.connsLock.Unlock()

	if q.conns[addr] == conn {
		delete(q.conns, addr)
	}
	conn.CloseWithError(0, "")
}

func (q *QuicComm) listen() {
	for {
		conn, err := q.listener.Accept(q.ctx)
		if err != nil {
			if q.ctx.Err() != nil {
				return
			}
			q.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		q.logger.WithField("from", conn.RemoteAddr()).Debug("accepted connection")

		go q.handleConn(conn)
	}
}

func (q *QuicComm) handleConn(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(q.ctx)
		if err != nil {
			return
		}

		go func() {
			data, err := io.ReadAll(io.LimitReader(stream, maxQuicMsgSize))
			stream.Close()
			if err != nil {
				q.logger.WithField("error", err).Debug("Failed to read stream")
				return
			}

			var f frame
			if err := common.DecodeMsgpack(data, &f); err != nil {
				q.logger.WithField("error", err).Error("Failed to decode incoming frame")
				return
			}

			q.inbox.Push(Incoming{Src: f.Src, Bytes: f.Payload})
		}()
	}
}

// Close implements the Comm interface.
func (q *QuicComm) Close() error {
	if q.ctx.Err() != nil {
		return nil
	}
	q.cancel()

	q.connsLock.Lock()
	for addr, conn := range q.conns {
		conn.CloseWithError(0, "")
		delete(q.conns, addr)
	}
	q.connsLock.Unlock()

	return q.listener.Close()
}

func selfSignedCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
