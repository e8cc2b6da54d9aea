package knowledge

import (
	"os"
	"path/filepath"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

const (
	// SectionChainFile holds our SignedChain.
	SectionChainFile = "section_chain.dat"
	// PrefixMapFile holds our SAP, the cached SAPs and our members.
	PrefixMapFile = "prefix_map.dat"
)

type prefixMapRecord struct {
	Name    xor.Name
	Ours    SignedSAP
	Others  []SignedSAP
	Members []SignedNodeState
}

// Persist writes the chain and the prefix map into dir.
func (k *NetworkKnowledge) Persist(dir string) error {
	k.l.RLock()
	chain := k.chain.Clone()
	rec := prefixMapRecord{
		Name:    k.name,
		Ours:    k.sap,
		Others:  k.others.All(),
		Members: k.members.All(),
	}
	k.l.RUnlock()

	if err := writeMsgpackFile(filepath.Join(dir, SectionChainFile), chain); err != nil {
		return err
	}
	return writeMsgpackFile(filepath.Join(dir, PrefixMapFile), rec)
}

// LoadNetworkKnowledge reads what Persist wrote. Every SAP and member state
// is re-verified against the loaded chain.
func LoadNetworkKnowledge(dir string) (*NetworkKnowledge, error) {
	var chain SignedChain
	if err := readMsgpackFile(filepath.Join(dir, SectionChainFile), &chain); err != nil {
		return nil, err
	}
	var rec prefixMapRecord
	if err := readMsgpackFile(filepath.Join(dir, PrefixMapFile), &rec); err != nil {
		return nil, err
	}
	k, err := NewNetworkKnowledge(rec.Name, chain, rec.Ours)
	if err != nil {
		return nil, err
	}
	for _, s := range rec.Others {
		if err := s.Verify(); err != nil {
			return nil, err
		}
		if k.others.Insert(s) {
			k.knownKeys[s.SAP.SectionKey()] = struct{}{}
		}
	}
	for _, m := range rec.Members {
		if _, err := k.UpdateMember(m); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func writeMsgpackFile(path string, v interface{}) error {
	b, err := common.EncodeMsgpack(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMsgpackFile(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return common.NewStoreErr("File", common.Empty, path)
	}
	return common.DecodeMsgpack(b, v)
}
