package engine

import (
	"crypto/rand"
	"math/big"
	"sort"
	"strings"

	"github.com/DoyleJ11/skio-race/pkg/course"
	"github.com/DoyleJ11/skio-race/pkg/rng"
	"github.com/google/uuid"
)

func NewState(code string, now int64, rules Rules) *State {
	s := &State{
		Code:              code,
		Phase:             PhaseLobby,
		MapSeed:           randomSeed(),
		LegSeed:           randomSeed(),
		CheckpointCount:   course.DefaultCheckpoints,
		ShowPositionOnMap: true,
		CreatedAt:         now,
		Players:           map[string]*Player{},
		Rules:             rules,
	}
	s.syncCourse()
	return s
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Roster returns players in join order.
func (s *State) Roster() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].JoinSeq < out[j].JoinSeq
	})
	return out
}

func (s *State) PlayerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range s.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// ConnectedRacers counts connected players who are not observing.
func (s *State) ConnectedRacers() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected && !p.Observer {
			n++
		}
	}
	return n
}

// ResumableProgress returns the stored snapshot for key if it belongs to the
// race that is running now.
func ResumableProgress(s *State, key string) *Progress {
	p, ok := s.Players[key]
	if !ok || p.Progress == nil || !p.Racing() {
		return nil
	}
	if s.Phase != PhaseRunning || p.Progress.Envelope != s.Live() {
		return nil
	}
	return p.Progress
}

// randomSeed is swapped out in tests.
var randomSeed = func() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(rng.MaxSeed-1))
	if err != nil {
		return 1
	}
	return n.Int64() + 1
}

func rerollSeed(prev int64) int64 {
	for i := 0; i < 8; i++ {
		if next := randomSeed(); next != prev {
			return next
		}
	}
	// a stubbed source that keeps repeating itself
	if prev >= rng.MaxSeed-1 {
		return 1
	}
	return prev + 1
}

var newPlayerKey = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var newPublicID = func() string {
	return uuid.NewString()[:8]
}
