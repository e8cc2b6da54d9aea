package net

import (
	"net"
	"time"
)

// tcpKeepAlive is the keep-alive period set on every connection, dialled or
// accepted. Peers of a section keep their connections open between messages.
const tcpKeepAlive = 30 * time.Second

// tcpLayer is the StreamLayer of a TCP comm. advertise is the address other
// nodes put in their peer records for us.
type tcpLayer struct {
	*net.TCPListener
	advertise string
}

// listenTCP binds bindAddr and checks that advertise, or the bound address
// when advertise is empty, can be reached by other nodes.
func listenTCP(bindAddr, advertise string) (*tcpLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	l := &tcpLayer{TCPListener: list.(*net.TCPListener)}

	addr := list.Addr()
	if advertise != "" {
		if addr, err = net.ResolveTCPAddr("tcp", advertise); err != nil {
			list.Close()
			return nil, err
		}
	}
	tcp, ok := addr.(*net.TCPAddr)
	switch {
	case !ok:
		err = errNotTCP
	case tcp.IP.IsUnspecified():
		err = errNotAdvertisable
	}
	if err != nil {
		list.Close()
		return nil, err
	}
	l.advertise = tcp.String()
	return l, nil
}

// Dial opens a connection to a peer.
func (l *tcpLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: tcpKeepAlive}
	return d.Dial("tcp", address)
}

// Accept waits for the next inbound connection.
func (l *tcpLayer) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(tcpKeepAlive)
	return conn, nil
}

func (l *tcpLayer) AdvertiseAddr() string {
	return l.advertise
}
