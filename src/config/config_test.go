package config

import (
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/sirupsen/logrus"
)

func TestValidate(t *testing.T) {
	conf := NewTestConfig(t, logrus.InfoLevel)
	conf.First = "127.0.0.1:0"
	if err := conf.Validate(); err != nil {
		t.Fatalf("default test config should be valid: %v", err)
	}

	conf.First = ""
	if err := conf.Validate(); !common.Is(err, common.Configuration) {
		t.Fatalf("expected Configuration error without first or bootstrap peers, got %v", err)
	}

	conf.BootstrapPeers = []string{"127.0.0.1:12000"}
	conf.Transport = "carrier-pigeon"
	if err := conf.Validate(); !common.Is(err, common.Configuration) {
		t.Fatalf("expected Configuration error for unknown transport, got %v", err)
	}
}

func TestSplitThreshold(t *testing.T) {
	conf := NewDefaultConfig()
	if got := conf.SectionSplitThreshold(); got != 2*DefaultElderSize {
		t.Fatalf("default split threshold should be %d, got %d", 2*DefaultElderSize, got)
	}
	conf.SplitThreshold = 5
	if got := conf.SectionSplitThreshold(); got != 5 {
		t.Fatalf("split threshold should be 5, got %d", got)
	}
}

func TestListenAddr(t *testing.T) {
	conf := NewDefaultConfig()
	if conf.ListenAddr() != DefaultLocalAddr {
		t.Fatalf("expected local addr")
	}
	conf.First = "127.0.0.1:0"
	if conf.ListenAddr() != "127.0.0.1:0" {
		t.Fatalf("first should take precedence")
	}
}
