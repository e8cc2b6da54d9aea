package faults

import (
	"sort"
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWindow is how long an issue counts against a node.
	DefaultWindow = 10 * time.Minute
	// DefaultStdDevs is how many standard deviations above the mean of the
	// rest of its group a node's score must be.
	DefaultStdDevs = 3.0
	// DefaultMinExcess is how far above the mean of the rest of its group a
	// node's score must be, so a single issue in an otherwise quiet section
	// (or in a uniformly noisy one) is not enough.
	DefaultMinExcess = 5.0
)

// FaultDetection tracks issues against the members of a section. It is safe
// for concurrent use.
type FaultDetection struct {
	l sync.Mutex

	window    time.Duration
	stdDevs   float64
	minExcess float64
	now       func() time.Time

	elders    map[xor.Name]struct{}
	nonElders map[xor.Name]struct{}
	issues    map[IssueKind]map[xor.Name][]time.Time
	liveness  *LivenessTracker

	logger *logrus.Entry
}

// NewFaultDetection ...
func NewFaultDetection(logger *logrus.Entry) *FaultDetection {
	f := &FaultDetection{
		window:    DefaultWindow,
		stdDevs:   DefaultStdDevs,
		minExcess: DefaultMinExcess,
		now:       time.Now,
		elders:    make(map[xor.Name]struct{}),
		nonElders: make(map[xor.Name]struct{}),
		issues:    make(map[IssueKind]map[xor.Name][]time.Time),
		liveness:  NewLivenessTracker(),
		logger:    logger,
	}
	for _, k := range issueKinds {
		f.issues[k] = make(map[xor.Name][]time.Time)
	}
	return f
}

// Liveness ...
func (f *FaultDetection) Liveness() *LivenessTracker {
	return f.liveness
}

// TrackIssue logs an issue against node. RequestOperation issues are
// tracked with TrackOp instead.
func (f *FaultDetection) TrackIssue(node xor.Name, kind IssueKind) {
	f.l.Lock()
	defer f.l.Unlock()
	f.issues[kind][node] = append(f.issues[kind][node], f.now())
	f.logger.WithFields(logrus.Fields{"node": node, "kind": kind}).Trace("Tracked issue")
}

// TrackOp logs a request op sent to node that awaits a response.
func (f *FaultDetection) TrackOp(node xor.Name, op string) {
	f.liveness.AddPendingOp(node, op, f.now())
}

// RequestFulfilled ...
func (f *FaultDetection) RequestFulfilled(node xor.Name, op string) bool {
	return f.liveness.RequestFulfilled(node, op)
}

// DkgAckFulfilled removes the oldest DKG issue of node.
func (f *FaultDetection) DkgAckFulfilled(node xor.Name) {
	f.popOldest(Dkg, node)
}

// ElderVoteReceived removes the oldest voting issue of node.
func (f *FaultDetection) ElderVoteReceived(node xor.Name) {
	f.popOldest(ElderVoting, node)
}

// AeUpdateMsgReceived removes the oldest probe issue of node.
func (f *FaultDetection) AeUpdateMsgReceived(node xor.Name) {
	f.popOldest(AeProbeMsg, node)
}

func (f *FaultDetection) popOldest(kind IssueKind, node xor.Name) {
	f.l.Lock()
	defer f.l.Unlock()
	q := f.issues[kind][node]
	if len(q) == 0 {
		return
	}
	if len(q) == 1 {
		delete(f.issues[kind], node)
		return
	}
	f.issues[kind][node] = q[1:]
}

// AddNewNode starts tracking a member that is not an elder.
func (f *FaultDetection) AddNewNode(node xor.Name) {
	f.l.Lock()
	defer f.l.Unlock()
	if _, ok := f.elders[node]; !ok {
		f.nonElders[node] = struct{}{}
	}
}

// UpdateAndOnlyRetainMembers sets the tracked population and drops the
// issues of everyone else.
func (f *FaultDetection) UpdateAndOnlyRetainMembers(nonElders, elders []xor.Name) {
	f.l.Lock()
	defer f.l.Unlock()

	f.elders = make(map[xor.Name]struct{}, len(elders))
	for _, n := range elders {
		f.elders[n] = struct{}{}
	}
	f.nonElders = make(map[xor.Name]struct{}, len(nonElders))
	for _, n := range nonElders {
		if _, ok := f.elders[n]; !ok {
			f.nonElders[n] = struct{}{}
		}
	}
	for _, byNode := range f.issues {
		for n := range byNode {
			if !f.isTracked(n) {
				delete(byNode, n)
			}
		}
	}
	f.liveness.Prune(time.Time{}, f.isTracked)
}

func (f *FaultDetection) isTracked(n xor.Name) bool {
	if _, ok := f.elders[n]; ok {
		return true
	}
	_, ok := f.nonElders[n]
	return ok
}

// IssueCount returns the number of live issues of kind against node.
func (f *FaultDetection) IssueCount(node xor.Name, kind IssueKind) int {
	f.l.Lock()
	defer f.l.Unlock()
	if kind == RequestOperation {
		return f.liveness.Pending(node, f.now().Add(-f.window))
	}
	return len(f.issues[kind][node])
}

// FindUnresponsiveNodes returns the faulty nodes, elders first, each group
// ordered by decreasing score.
func (f *FaultDetection) FindUnresponsiveNodes() []xor.Name {
	f.l.Lock()
	defer f.l.Unlock()

	f.cleanup()
	res := f.faultyIn(f.elders)
	return append(res, f.faultyIn(f.nonElders)...)
}

func (f *FaultDetection) cleanup() {
	since := f.now().Add(-f.window)
	for _, byNode := range f.issues {
		for n, q := range byNode {
			i := 0
			for i < len(q) && q[i].Before(since) {
				i++
			}
			if i == len(q) {
				delete(byNode, n)
			} else {
				byNode[n] = q[i:]
			}
		}
	}
	f.liveness.Prune(since, f.isTracked)
}

func (f *FaultDetection) score(n xor.Name, since time.Time) float64 {
	var s float64
	for _, k := range issueKinds {
		count := len(f.issues[k][n])
		if k == RequestOperation {
			count = f.liveness.Pending(n, since)
		}
		s += float64(count) * k.Weight()
	}
	return s
}

type scored struct {
	name  xor.Name
	score float64
}

// faultyIn compares each node with the rest of its group: a node is faulty
// when its score exceeds the mean of the others by at least minExcess and by
// more than stdDevs of their standard deviation.
func (f *FaultDetection) faultyIn(group map[xor.Name]struct{}) []xor.Name {
	since := f.now().Add(-f.window)
	all := make([]scored, 0, len(group))
	for n := range group {
		all = append(all, scored{name: n, score: f.score(n, since)})
	}

	var faulty []scored
	for i, c := range all {
		others := make([]float64, 0, len(all)-1)
		for j, o := range all {
			if j != i {
				others = append(others, o.score)
			}
		}
		mean, sd := common.Mean(others), common.StdDev(others)
		if c.score-mean >= f.minExcess && c.score > mean+f.stdDevs*sd {
			f.logger.WithFields(logrus.Fields{
				"node":  c.name,
				"score": c.score,
				"mean":  mean,
				"sd":    sd,
			}).Info("Node is faulty")
			faulty = append(faulty, c)
		}
	}

	sort.Slice(faulty, func(i, j int) bool {
		if faulty[i].score != faulty[j].score {
			return faulty[i].score > faulty[j].score
		}
		return faulty[i].name.Hex() < faulty[j].name.Hex()
	})
	res := make([]xor.Name, len(faulty))
	for i, c := range faulty {
		res[i] = c.name
	}
	return res
}
