package transfers

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const logExtension = ".log"

// LogStore persists wallet logs as append-only files of msgpack records,
// one file per wallet, named after the hex of the wallet key.
type LogStore struct {
	dir    string
	logger *logrus.Entry
}

// NewLogStore creates dir if needed.
func NewLogStore(dir string, logger *logrus.Entry) (*LogStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &LogStore{dir: dir, logger: logger}, nil
}

func (s *LogStore) path(owner keys.PublicKey) string {
	return filepath.Join(s.dir, owner.Hex()+logExtension)
}

// Append writes one event at the end of owner's log.
func (s *LogStore) Append(owner keys.PublicKey, e ReplicaEvent) error {
	f, err := os.OpenFile(s.path(owner), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := codec.NewEncoder(f, common.MsgpackHandle())
	if err := enc.Encode(e); err != nil {
		return err
	}
	return f.Sync()
}

// Read returns the events of owner's log. A truncated last record, left by
// a crash in the middle of a write, is dropped.
func (s *LogStore) Read(owner keys.PublicKey) ([]ReplicaEvent, error) {
	f, err := os.Open(s.path(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := codec.NewDecoder(f, common.MsgpackHandle())
	var events []ReplicaEvent
	for {
		var e ReplicaEvent
		err := dec.Decode(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.WithError(err).WithField("wallet", owner).Warn("Dropping corrupted tail of wallet log")
			break
		}
		events = append(events, e)
	}
	return events, nil
}

// Owners lists the wallets that have a log.
func (s *LogStore) Owners() ([]keys.PublicKey, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var res []keys.PublicKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, logExtension) {
			continue
		}
		pk, err := keys.PublicKeyFromHex(strings.TrimSuffix(name, logExtension))
		if err != nil {
			s.logger.WithField("file", name).Warn("Ignoring unexpected file in wallet logs")
			continue
		}
		res = append(res, pk)
	}
	return res, nil
}
