package peers

import (
	"bytes"
	"os"
	"sync"

	"github.com/ugorji/go/codec"
)

// ConnectionInfo is what a client or a joining node needs to reach the
// network: the genesis key to anchor trust and the addresses to contact.
type ConnectionInfo struct {
	GenesisKey string   `json:"genesis_key"`
	Addrs      []string `json:"addrs"`
}

// ConnectionInfoFile persists the node's ConnectionInfo as JSON.
type ConnectionInfoFile struct {
	l    sync.Mutex
	path string
}

// NewConnectionInfoFile ...
func NewConnectionInfoFile(path string) *ConnectionInfoFile {
	return &ConnectionInfoFile{path: path}
}

// Write replaces the file content with info.
func (f *ConnectionInfoFile) Write(info ConnectionInfo) error {
	f.l.Lock()
	defer f.l.Unlock()

	var buf bytes.Buffer
	jh := new(codec.JsonHandle)
	jh.Indent = 2
	if err := codec.NewEncoder(&buf, jh).Encode(info); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Read parses the file.
func (f *ConnectionInfoFile) Read() (ConnectionInfo, error) {
	f.l.Lock()
	defer f.l.Unlock()

	var info ConnectionInfo
	buf, err := os.ReadFile(f.path)
	if err != nil {
		return info, err
	}
	jh := new(codec.JsonHandle)
	err = codec.NewDecoderBytes(buf, jh).Decode(&info)
	return info, err
}
