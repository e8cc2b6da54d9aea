package data

import (
	"io"
	"os"
	"path/filepath"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const eventsFile = "events.log"

// opLog stores the ops of each address of one data type as an append-only
// file of msgpack records: <dir>/<address key>/events.log.
type opLog struct {
	dir    string
	used   *UsedSpace
	logger *logrus.Entry
}

func newOpLog(root, name string, used *UsedSpace, logger *logrus.Entry) (*opLog, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	l := &opLog{
		dir:    dir,
		used:   used,
		logger: logger.WithField("store", name),
	}

	// Count existing logs against the capacity.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var total uint64
	for _, e := range entries {
		if info, err := os.Stat(filepath.Join(dir, e.Name(), eventsFile)); err == nil {
			total += uint64(info.Size())
		}
	}
	if err := used.Increase(total); err != nil {
		l.logger.WithError(err).Warn("Stored data exceeds capacity")
		used.add(total)
	}

	return l, nil
}

func (l *opLog) path(addr types.Address) string {
	return filepath.Join(l.dir, addr.Key(), eventsFile)
}

// append writes op at the end of the log of addr, reserving its size first.
func (l *opLog) append(addr types.Address, op interface{}) error {
	b, err := common.EncodeMsgpack(op)
	if err != nil {
		return err
	}
	if err := l.used.Increase(uint64(len(b))); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path(addr)), 0700); err != nil {
		l.used.Decrease(uint64(len(b)))
		return err
	}
	f, err := os.OpenFile(l.path(addr), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		l.used.Decrease(uint64(len(b)))
		return err
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// replay decodes the ops of addr in order, passing each one to apply. next
// returns a fresh value to decode into. A missing log yields DataNotFound.
func (l *opLog) replay(addr types.Address, next func() interface{}, apply func(interface{}) error) error {
	f, err := os.Open(l.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return common.NewError(common.DataNotFound, "%v", addr)
		}
		return err
	}
	defer f.Close()

	dec := codec.NewDecoder(f, common.MsgpackHandle())
	for {
		op := next()
		err := dec.Decode(op)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			l.logger.WithError(err).WithField("address", addr).Warn("Dropping corrupted tail of data log")
			return nil
		}
		if err := apply(op); err != nil {
			return err
		}
	}
}
