package engine

import (
	"sort"

	"github.com/DoyleJ11/skio-race/pkg/course"
)

func requireLeader(s *State, key string) error {
	if key == "" || key != s.LeaderID {
		return ErrNotLeader
	}
	return nil
}

func reroll(s *State, cmd Command, newMap bool) ([]Event, error) {
	if err := requireLeader(s, cmd.PlayerKey); err != nil {
		return nil, err
	}
	if s.Phase != PhaseLobby && s.Phase != PhaseFinished {
		return nil, ErrWrongPhase
	}
	if newMap {
		s.MapSeed = rerollSeed(s.MapSeed)
	}
	s.LegSeed = rerollSeed(s.LegSeed)

	var events []Event
	if s.Phase != PhaseLobby {
		events = append(events, Event{Type: EvtRaceReset})
	}
	resetToLobby(s)
	s.syncCourse()
	return append(events, Event{Type: EvtCourseChanged}), nil
}

func start(s *State, cmd Command, now int64) ([]Event, error) {
	if err := requireLeader(s, cmd.PlayerKey); err != nil {
		return nil, err
	}
	if s.Phase != PhaseLobby && s.Phase != PhaseFinished {
		return nil, ErrWrongPhase
	}
	if s.ConnectedRacers() == 0 {
		return nil, ErrNoRacers
	}

	resetCycle(s)
	countdown := s.Rules.CountdownMs
	if countdown < 0 {
		countdown = 0
	}
	s.Phase = PhaseCountdown
	s.StartedAt = now + countdown
	s.CountdownEndsAt = s.StartedAt

	events := []Event{{Type: EvtCountdownScheduled, At: s.StartedAt}}
	if PromoteIfDue(s, now) {
		events = append(events, Event{Type: EvtRaceStarted, At: s.StartedAt})
	}
	return events, nil
}

func setCheckpointCount(s *State, cmd Command) ([]Event, error) {
	if err := requireLeader(s, cmd.PlayerKey); err != nil {
		return nil, err
	}
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	count := course.ClampCheckpointCount(cmd.Count)
	if count == s.CheckpointCount {
		return nil, nil
	}
	s.CheckpointCount = count
	s.syncCourse()
	return []Event{{Type: EvtConfigChanged}, {Type: EvtCourseChanged}}, nil
}

func setShowPosition(s *State, cmd Command) ([]Event, error) {
	if err := requireLeader(s, cmd.PlayerKey); err != nil {
		return nil, err
	}
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	if s.ShowPositionOnMap == cmd.Enabled {
		return nil, nil
	}
	s.ShowPositionOnMap = cmd.Enabled
	return []Event{{Type: EvtConfigChanged}}, nil
}

// racer resolves the sender of a gameplay event and checks it belongs to the
// live cycle.
func racer(s *State, key string, env Envelope) (*Player, error) {
	p, ok := s.Players[key]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if s.Phase != PhaseRunning || env != s.Live() || p.Observer {
		return nil, ErrStale
	}
	return p, nil
}

func elapsed(s *State, p *Player, now int64) int64 {
	ms := now - s.StartedAt
	if ms < 0 {
		ms = 0
	}
	if n := len(p.Splits); n > 0 && ms < p.Splits[n-1] {
		ms = p.Splits[n-1]
	}
	return ms
}

func split(s *State, cmd Command, now int64) ([]Event, error) {
	p, err := racer(s, cmd.PlayerKey, cmd.Envelope)
	if err != nil {
		return nil, err
	}
	if !p.Racing() {
		return nil, ErrStale
	}
	if cmd.SplitIndex != len(p.Splits)+1 || cmd.SplitIndex > s.CheckpointTotal() {
		return nil, ErrStale
	}
	p.Splits = append(p.Splits, elapsed(s, p, now))
	return []Event{{Type: EvtSplitRecorded, PlayerKey: p.Key}}, nil
}

func finish(s *State, cmd Command, now int64) ([]Event, error) {
	p, err := racer(s, cmd.PlayerKey, cmd.Envelope)
	if err != nil {
		return nil, err
	}
	if p.Finished {
		return nil, nil
	}
	if p.Withdrawn {
		return nil, ErrStale
	}

	p.FinishedMs = elapsed(s, p, now)
	p.Finished = true
	p.FinishRank = nextRank(s)
	if len(p.Splits) == s.CheckpointTotal()-1 {
		p.Splits = append(p.Splits, p.FinishedMs)
	}
	events := []Event{{Type: EvtPlayerFinished, PlayerKey: p.Key}}
	return append(events, settle(s)...), nil
}

func withdraw(s *State, cmd Command, now int64) ([]Event, error) {
	if p, ok := s.Players[cmd.PlayerKey]; ok && p.withdrewFrom != (Envelope{}) && p.withdrewFrom == cmd.Envelope {
		return nil, nil
	}
	p, err := racer(s, cmd.PlayerKey, cmd.Envelope)
	if err != nil {
		return nil, err
	}
	if p.Finished {
		return nil, ErrStale
	}

	p.Withdrawn = true
	p.WithdrawnAt = now
	p.withdrewFrom = cmd.Envelope
	p.FinishRank = nextRank(s)
	events := []Event{{Type: EvtPlayerWithdrew, PlayerKey: p.Key}}

	// Nobody left to race against: back to the lobby rather than a result
	// screen with one withdrawal on it.
	others := 0
	for _, o := range s.Players {
		if o != p && o.Connected && !o.Observer {
			others++
		}
	}
	if others == 0 {
		resetToLobby(s)
		return append(events, Event{Type: EvtRaceReset}), nil
	}
	return append(events, settle(s)...), nil
}

func storeProgress(s *State, cmd Command) ([]Event, error) {
	if cmd.Progress == nil {
		return nil, ErrStale
	}
	p, err := racer(s, cmd.PlayerKey, cmd.Progress.Envelope)
	if err != nil {
		return nil, err
	}
	if !p.Racing() {
		return nil, ErrStale
	}
	if p.Progress != nil && cmd.Progress.SavedAt < p.Progress.SavedAt {
		return nil, ErrStale
	}
	stored, ok := clampProgress(s, *cmd.Progress)
	if !ok {
		return nil, ErrStale
	}
	p.Progress = stored
	return []Event{{Type: EvtProgressStored, PlayerKey: p.Key}}, nil
}

func clampProgress(s *State, prog Progress) (*Progress, bool) {
	pos, ok := s.Course.ClampPosition(prog.Position)
	if !ok {
		return nil, false
	}
	prog.Position = pos
	prog.Route = s.Course.ClampRoute(prog.Route)
	return &prog, true
}

// settle applies the completion rules after a departure or a result.
func settle(s *State) []Event {
	switch s.Phase {
	case PhaseCountdown:
		if s.ConnectedRacers() == 0 {
			resetToLobby(s)
			return []Event{{Type: EvtCountdownCancelled}, {Type: EvtRaceReset}}
		}
	case PhaseRunning:
		active, done, withdrawn := tally(s)
		switch {
		case active == 0 || withdrawn == active:
			resetToLobby(s)
			return []Event{{Type: EvtRaceReset}}
		case done == active:
			s.Phase = PhaseFinished
			return []Event{{Type: EvtRaceFinished}}
		}
	}
	return nil
}

// tally counts the racers a running race waits on: non-observers that are
// connected or already have a result.
func tally(s *State) (active, done, withdrawn int) {
	for _, p := range s.Players {
		if p.Observer || !(p.Connected || p.Finished || p.Withdrawn) {
			continue
		}
		active++
		if p.Finished || p.Withdrawn {
			done++
		}
		if p.Withdrawn {
			withdrawn++
		}
	}
	return active, done, withdrawn
}

func resetToLobby(s *State) {
	s.Phase = PhaseLobby
	resetCycle(s)
}

// resetCycle clears everything that belongs to one race.
func resetCycle(s *State) {
	s.StartedAt = 0
	s.CountdownEndsAt = 0
	for _, p := range s.Players {
		p.clearRace()
	}
}

func nextRank(s *State) int {
	n := 0
	for _, p := range s.Players {
		if p.FinishRank > 0 {
			n++
		}
	}
	return n + 1
}

// compactRanks renumbers the remaining results 1..n in their current order.
func compactRanks(s *State) {
	var ranked []*Player
	for _, p := range s.Players {
		if p.FinishRank > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].FinishRank < ranked[j].FinishRank })
	for i, p := range ranked {
		p.FinishRank = i + 1
	}
}
