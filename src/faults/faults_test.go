package faults

import (
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func newDetection(t *testing.T, adults, elders int) (*FaultDetection, *clock, []xor.Name, []xor.Name) {
	f := NewFaultDetection(common.NewTestEntry(t, logrus.DebugLevel))
	c := &clock{t: time.Unix(1000, 0)}
	f.now = c.now

	a := make([]xor.Name, adults)
	for i := range a {
		a[i] = xor.RandomName()
	}
	e := make([]xor.Name, elders)
	for i := range e {
		e[i] = xor.RandomName()
	}
	f.UpdateAndOnlyRetainMembers(a, e)
	return f, c, a, e
}

func TestQuietSectionHasNoFaults(t *testing.T) {
	f, _, adults, _ := newDetection(t, 10, 7)
	f.TrackIssue(adults[0], Communication)
	assert.Empty(t, f.FindUnresponsiveNodes())
}

func TestUnfulfilledOpsMakeNodeFaulty(t *testing.T) {
	f, _, adults, _ := newDetection(t, 10, 7)
	bad := adults[3]

	for i := 0; i < 3; i++ {
		op := xor.RandomName().Hex()
		for _, a := range adults[:5] {
			f.TrackOp(a, op)
		}
		for _, a := range adults[:5] {
			if a != bad {
				assert.True(t, f.RequestFulfilled(a, op))
			}
		}
		f.TrackIssue(bad, Communication)
	}

	assert.Equal(t, 3, f.IssueCount(bad, RequestOperation))
	assert.Equal(t, []xor.Name{bad}, f.FindUnresponsiveNodes())
}

func TestNoiseIsTolerated(t *testing.T) {
	f, _, adults, _ := newDetection(t, 10, 7)
	for _, a := range adults {
		for i := 0; i < 5; i++ {
			f.TrackIssue(a, Communication)
		}
	}
	f.TrackIssue(adults[0], Communication)
	assert.Empty(t, f.FindUnresponsiveNodes())
}

func TestAcksRemoveIssues(t *testing.T) {
	f, _, _, elders := newDetection(t, 3, 7)
	e := elders[0]
	for i := 0; i < 4; i++ {
		f.TrackIssue(e, ElderVoting)
		f.TrackIssue(e, Dkg)
		f.TrackIssue(e, AeProbeMsg)
	}
	assert.Equal(t, []xor.Name{e}, f.FindUnresponsiveNodes())

	for i := 0; i < 4; i++ {
		f.ElderVoteReceived(e)
		f.DkgAckFulfilled(e)
		f.AeUpdateMsgReceived(e)
	}
	f.ElderVoteReceived(e)
	assert.Equal(t, 0, f.IssueCount(e, ElderVoting))
	assert.Empty(t, f.FindUnresponsiveNodes())
}

func TestIssuesExpire(t *testing.T) {
	f, c, adults, _ := newDetection(t, 5, 3)
	for i := 0; i < 5; i++ {
		f.TrackIssue(adults[0], NetworkKnowledge)
		f.TrackOp(adults[0], xor.RandomName().Hex())
	}
	require.Equal(t, []xor.Name{adults[0]}, f.FindUnresponsiveNodes())

	c.t = c.t.Add(DefaultWindow + time.Second)
	assert.Empty(t, f.FindUnresponsiveNodes())
	assert.Equal(t, 0, f.IssueCount(adults[0], NetworkKnowledge))
	assert.Equal(t, 0, f.IssueCount(adults[0], RequestOperation))
}

func TestRetainMembersDropsIssues(t *testing.T) {
	f, _, adults, elders := newDetection(t, 4, 3)
	gone := adults[0]
	for i := 0; i < 5; i++ {
		f.TrackIssue(gone, Communication)
	}
	f.TrackOp(gone, "op")

	f.UpdateAndOnlyRetainMembers(adults[1:], elders)
	assert.Equal(t, 0, f.IssueCount(gone, Communication))
	assert.False(t, f.RequestFulfilled(gone, "op"))
	assert.Empty(t, f.FindUnresponsiveNodes())

	newbie := xor.RandomName()
	f.AddNewNode(newbie)
	for i := 0; i < 5; i++ {
		f.TrackIssue(newbie, Communication)
	}
	assert.Equal(t, []xor.Name{newbie}, f.FindUnresponsiveNodes())
}

func TestEldersScoredSeparately(t *testing.T) {
	f, _, adults, elders := newDetection(t, 5, 3)
	// Elders all have a lot of issues; an adult with fewer still stands out
	// among adults.
	for _, e := range elders {
		for i := 0; i < 10; i++ {
			f.TrackIssue(e, Communication)
		}
	}
	for i := 0; i < 3; i++ {
		f.TrackIssue(adults[2], Communication)
	}
	assert.Equal(t, []xor.Name{adults[2]}, f.FindUnresponsiveNodes())
}
