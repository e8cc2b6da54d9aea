package client

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/maidsafe/temp-safe-network-sub012/src/node"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 10 * time.Second

type testSection struct {
	network *net.InmemNetwork
	genesis *node.Node
	// genesisKey owns the genesis credit.
	genesisKey ed25519.PrivateKey
}

func testConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, logrus.WarnLevel)
	conf.ElderSize = 1
	conf.SplitThreshold = 1000
	conf.ChunkCopyCount = 2
	conf.InboxCapacity = 1000
	conf.MaxCapacity = 1024 * 1024
	return conf
}

func startNode(t *testing.T, network *net.InmemNetwork, conf *config.Config) (*node.Node, ed25519.PrivateKey) {
	key, err := keys.GenerateKey()
	require.NoError(t, err)

	comm := network.NewComm("", conf.InboxCapacity, conf.Logger())
	n, err := node.NewNode(conf, node.NewValidator(key, comm.LocalAddr()), comm)
	require.NoError(t, err)
	t.Cleanup(n.Shutdown)

	require.NoError(t, n.Init())
	n.RunAsync()
	return n, key
}

// newTestSection starts a genesis elder and joins adults to it.
func newTestSection(t *testing.T, adults int) *testSection {
	s := &testSection{network: net.NewInmemNetwork()}

	conf := testConfig(t)
	conf.First = "genesis"
	s.genesis, s.genesisKey = startNode(t, s.network, conf)

	for i := 0; i < adults; i++ {
		conf := testConfig(t)
		conf.BootstrapPeers = []string{s.genesis.Identity().Addr}
		adult, _ := startNode(t, s.network, conf)

		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		err := adult.WaitJoined(ctx)
		cancel()
		require.NoError(t, err)
	}

	// The elder learns about the last adult when it handles the agreement,
	// possibly after the adult heard back.
	require.Eventually(t, func() bool {
		k := s.genesis.Knowledge()
		return k != nil && len(k.Adults()) == adults
	}, testTimeout, 10*time.Millisecond)

	return s
}

func (s *testSection) newClient(t *testing.T, key ed25519.PrivateKey) *Client {
	if key == nil {
		var err error
		key, err = keys.GenerateKey()
		require.NoError(t, err)
	}
	logger := common.NewTestEntry(t, logrus.WarnLevel)
	c := NewClient(key, s.network.NewComm("", 1000, logger), testTimeout, logger)
	t.Cleanup(func() { c.Close() })
	return c
}

func (s *testSection) bootstrapped(t *testing.T, key ed25519.PrivateKey) *Client {
	c := s.newClient(t, key)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Bootstrap(ctx, []string{s.genesis.Identity().Addr}))
	return c
}

func kindOf(t *testing.T, err error) common.ErrKind {
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok, "untyped error %v", err)
	return kind
}

func TestBootstrap(t *testing.T) {
	s := newTestSection(t, 0)
	c := s.bootstrapped(t, nil)

	k := s.genesis.Knowledge()
	assert.Equal(t, k.Chain().RootKey(), c.GenesisKey())

	sap, ok := c.SectionFor(xor.RandomName())
	require.True(t, ok)
	assert.Equal(t, k.SectionKey(), sap.SAP.SectionKey())
}

func TestBootstrapFromFile(t *testing.T) {
	s := newTestSection(t, 0)
	k := s.genesis.Knowledge()
	root := k.Chain().RootKey()

	path := t.TempDir() + "/connection_info"
	info := peers.ConnectionInfo{
		GenesisKey: common.EncodeToString(root[:]),
		Addrs:      []string{s.genesis.Identity().Addr},
	}
	require.NoError(t, peers.NewConnectionInfoFile(path).Write(info))

	c := s.newClient(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.BootstrapFromFile(ctx, path))
	assert.Equal(t, k.Chain().RootKey(), c.GenesisKey())
}

func TestRequestBeforeBootstrap(t *testing.T) {
	s := newTestSection(t, 0)
	c := s.newClient(t, nil)

	_, err := c.Balance(context.Background())
	assert.Equal(t, common.InvalidState, kindOf(t, err))
}

func TestTransfer(t *testing.T) {
	s := newTestSection(t, 0)
	ctx := context.Background()

	sender := s.bootstrapped(t, s.genesisKey)
	recipient := s.bootstrapped(t, nil)

	balance, err := sender.Balance(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, config.DefaultGenesisAmount, balance)

	_, err = sender.Transfer(ctx, 0, recipient.PublicKey(), "nothing")
	assert.Equal(t, common.InvalidAmount, kindOf(t, err))

	_, err = sender.Transfer(ctx, 10, sender.PublicKey(), "self")
	assert.Equal(t, common.InvalidOperation, kindOf(t, err))

	credit, err := sender.Transfer(ctx, 100, recipient.PublicKey(), "first")
	require.NoError(t, err)
	assert.EqualValues(t, 100, credit.Credit.Credit.Amount)

	credit, err = sender.Transfer(ctx, 50, recipient.PublicKey(), "second")
	require.NoError(t, err)
	assert.EqualValues(t, 50, credit.Credit.Credit.Amount)

	balance, err = sender.Balance(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, config.DefaultGenesisAmount-150, balance)

	balance, err = recipient.Balance(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 150, balance)

	history, err := sender.History(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	// The recipient cannot spend more than it was credited.
	_, err = recipient.Transfer(ctx, 151, sender.PublicKey(), "too much")
	assert.Equal(t, common.BalanceExceeded, kindOf(t, err))
}

func TestChunks(t *testing.T) {
	s := newTestSection(t, 2)
	ctx := context.Background()

	owner := s.bootstrapped(t, nil)
	other := s.bootstrapped(t, nil)

	public := types.NewPublicChunk([]byte("public chunk"))
	require.NoError(t, owner.StoreChunk(ctx, public))

	got, err := other.GetChunk(ctx, public.Address)
	require.NoError(t, err)
	assert.Equal(t, public.Value, got.Value)

	err = owner.DeleteChunk(ctx, public.Address)
	assert.Equal(t, common.InvalidOperation, kindOf(t, err))

	private := types.NewPrivateChunk([]byte("private chunk"), owner.PublicKey())
	require.NoError(t, owner.StoreChunk(ctx, private))

	err = other.DeleteChunk(ctx, private.Address)
	assert.Equal(t, common.AccessDenied, kindOf(t, err))

	require.NoError(t, owner.DeleteChunk(ctx, private.Address))

	_, err = owner.GetChunk(ctx, private.Address)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	s := newTestSection(t, 0)
	ctx := context.Background()

	c := s.bootstrapped(t, nil)
	addr := types.Address{Name: xor.RandomName(), Tag: 15000}

	require.NoError(t, c.ApplyRegister(ctx, types.RegisterOp{
		Address: addr,
		Create:  &types.Policy{Owner: c.PublicKey(), Public: true},
	}))
	require.NoError(t, c.ApplyRegister(ctx, types.RegisterOp{Address: addr, Version: 0, Write: []byte("v1")}))

	err := c.ApplyRegister(ctx, types.RegisterOp{Address: addr, Version: 0, Write: []byte("v1 again")})
	assert.Equal(t, common.InvalidSuccessor, kindOf(t, err))

	reg, err := c.GetRegister(ctx, addr)
	require.NoError(t, err)
	v, ok := reg.Value()
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	_, err = c.GetRegister(ctx, types.Address{Name: xor.RandomName(), Tag: 15000})
	assert.Equal(t, common.DataNotFound, kindOf(t, err))
}
