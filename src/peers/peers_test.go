package peers

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

func randomPeers(t *testing.T, n int) []Peer {
	res := []Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		res = append(res, NewPeer(keys.PublicKeyOf(key), MinAdultAge, "addr"))
	}
	return res
}

func TestPeerValidate(t *testing.T) {
	p := randomPeers(t, 1)[0]
	if err := p.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}
	p.Name = xor.RandomName()
	if err := p.Validate(); err == nil {
		t.Fatalf("a peer with a forged name should not validate")
	}
}

func TestPeerSet(t *testing.T) {
	peers := randomPeers(t, 5)
	ps := NewPeerSet(peers)

	if ps.Len() != 5 {
		t.Fatalf("expected 5 peers, got %d", ps.Len())
	}
	for i := 1; i < ps.Len(); i++ {
		a, b := ps.Peers[i-1].Name, ps.Peers[i].Name
		if (xor.Name{}).CmpDistance(a, b) >= 0 {
			t.Fatalf("peers are not sorted")
		}
	}

	// Insertion order does not matter.
	reversed := []Peer{}
	for i := len(peers) - 1; i >= 0; i-- {
		reversed = append(reversed, peers[i])
	}
	if !reflect.DeepEqual(ps.Peers, NewPeerSet(reversed).Peers) {
		t.Fatalf("order should only depend on names")
	}
	if ps.Hash() != NewPeerSet(reversed).Hash() {
		t.Fatalf("hash should only depend on names")
	}

	removed := ps.WithRemovedPeer(peers[0].Name)
	if removed.Len() != 4 || removed.Contains(peers[0].Name) {
		t.Fatalf("peer was not removed")
	}
	added := removed.WithNewPeer(peers[0])
	if !added.SameNames(ps) {
		t.Fatalf("re-adding the peer should restore the set")
	}
	if ps.SuperMajority() != 4 {
		t.Fatalf("super majority of 5 should be 4, got %d", ps.SuperMajority())
	}
}

func TestClosest(t *testing.T) {
	peers := randomPeers(t, 10)
	target := xor.RandomName()

	closest := Closest(peers, target, 4, nil)
	if len(closest) != 4 {
		t.Fatalf("expected 4 peers, got %d", len(closest))
	}
	for _, p := range peers {
		in := false
		for _, c := range closest {
			if c.Name == p.Name {
				in = true
			}
		}
		if !in && target.CmpDistance(p.Name, closest[3].Name) < 0 {
			t.Fatalf("%v is closer than the selected peers", p.Name)
		}
	}

	skipped := Closest(peers, target, 4, func(p Peer) bool { return p.Name == closest[0].Name })
	if skipped[0].Name == closest[0].Name {
		t.Fatalf("skipped peer was selected")
	}
}

func TestConnectionInfoFile(t *testing.T) {
	f := NewConnectionInfoFile(filepath.Join(t.TempDir(), "node_connection_info.config"))

	if _, err := f.Read(); err == nil {
		t.Fatalf("Read should fail before the first Write")
	}

	info := ConnectionInfo{GenesisKey: "ab", Addrs: []string{"127.0.0.1:12000"}}
	if err := f.Write(info); err != nil {
		t.Fatalf("err: %v", err)
	}
	got, err := f.Read()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(info, got) {
		t.Fatalf("got %+v, want %+v", got, info)
	}
}
