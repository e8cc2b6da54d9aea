package net

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// NewTCPComm returns a StreamComm that is built on top of a TCP streaming
// transport layer, with log output going to the supplied Logger. The caller
// must start Listen in a goroutine.
func NewTCPComm(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	capacity int,
	logger *logrus.Entry,
) (*StreamComm, error) {
	return newTCPComm(bindAddr, advertise, func(stream StreamLayer) *StreamComm {
		return NewStreamComm(stream, maxPool, timeout, capacity, logger)
	})
}

func newTCPComm(bindAddr string,
	advertiseAddr string,
	commCreator func(stream StreamLayer) *StreamComm) (*StreamComm, error) {

	stream, err := listenTCP(bindAddr, advertiseAddr)
	if err != nil {
		return nil, err
	}
	return commCreator(stream), nil
}
