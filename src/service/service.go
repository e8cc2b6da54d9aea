package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/node"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/sirupsen/logrus"
)

// Service exposes the state of a node over HTTP, as JSON.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering status handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/section", s.makeHandler(s.GetSection))
	s.mux.HandleFunc("/members", s.makeHandler(s.GetMembers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving every endpoint.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving status API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// PeerInfo is the JSON form of a peer.
type PeerInfo struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Age       uint8  `json:"age"`
	Addr      string `json:"addr"`
	State     string `json:"state,omitempty"`
}

func peerInfo(p peers.Peer) PeerInfo {
	return PeerInfo{
		Name:      p.Name.Hex(),
		PublicKey: p.PublicKey.Hex(),
		Age:       p.Age,
		Addr:      p.Addr,
	}
}

// SectionInfo is the JSON form of our SAP.
type SectionInfo struct {
	Prefix     string     `json:"prefix"`
	SectionKey string     `json:"section_key"`
	GenesisKey string     `json:"genesis_key"`
	ChainLen   int        `json:"chain_len"`
	Elders     []PeerInfo `json:"elders"`
}

// GetSection returns our section's prefix, key and elders. It answers 503
// until the node joined a section.
func (s *Service) GetSection(w http.ResponseWriter, r *http.Request) {
	k := s.node.Knowledge()
	if k == nil {
		http.Error(w, "not joined", http.StatusServiceUnavailable)
		return
	}

	chain := k.Chain()
	info := SectionInfo{
		Prefix:     k.Prefix().String(),
		SectionKey: k.SectionKey().Hex(),
		GenesisKey: chain.RootKey().Hex(),
		ChainLen:   chain.Len(),
		Elders:     []PeerInfo{},
	}
	for _, e := range k.Elders() {
		info.Elders = append(info.Elders, peerInfo(e))
	}

	writeJSON(w, info)
}

// GetMembers returns the current members of our section with their
// membership state.
func (s *Service) GetMembers(w http.ResponseWriter, r *http.Request) {
	k := s.node.Knowledge()
	if k == nil {
		http.Error(w, "not joined", http.StatusServiceUnavailable)
		return
	}

	res := []PeerInfo{}
	for _, p := range k.Members() {
		info := peerInfo(p)
		if state, ok := k.Member(p.Name); ok {
			info.State = state.NodeState.State.String()
		}
		res = append(res, info)
	}

	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
