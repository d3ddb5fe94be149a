package engine

func join(s *State, cmd Command, now int64) ([]Event, error) {
	key := NormalizeKey(cmd.PlayerKey)
	if key == "" {
		key = newPlayerKey()
	}

	// The same socket joining under another key gives up its old record.
	prev := s.PlayerByConn(cmd.ConnID)
	if prev != nil && prev.Key == key {
		prev = nil
	}

	var events []Event
	p, ok := s.Players[key]
	if ok {
		if p.ConnID != "" && p.ConnID != cmd.ConnID {
			events = append(events, Event{Type: EvtConnectionReplaced, PlayerKey: key, ConnID: p.ConnID})
		}
		if !p.Connected {
			events = append(events, Event{Type: EvtGraceCancelled, PlayerKey: key})
		}
		p.ConnID = cmd.ConnID
		p.Connected = true
		p.DisconnectedAt = 0
		events = append(events, Event{Type: EvtPlayerRejoined, PlayerKey: key, ConnID: cmd.ConnID})
	} else {
		name := NormalizeName(cmd.Name)
		if name == "" {
			name = defaultName()
		}
		color, valid := NormalizeColor(cmd.Color)
		if !valid {
			color = randomColor()
		}
		s.joinSeq++
		p = &Player{
			Key:       key,
			ID:        newPublicID(),
			Name:      name,
			Color:     color,
			JoinedAt:  now,
			JoinSeq:   s.joinSeq,
			ConnID:    cmd.ConnID,
			Connected: true,
		}
		s.Players[key] = p
		events = append(events, Event{Type: EvtPlayerJoined, PlayerKey: key, ConnID: cmd.ConnID})

		// Newcomers watch a race already in progress unless they bring a
		// snapshot from it.
		if s.Phase == PhaseRunning && !presentsLive(s, cmd.Progress) {
			p.Observer = true
		}
	}

	if cmd.Progress != nil && !p.Observer && ResumableProgress(s, key) == nil && presentsLive(s, cmd.Progress) {
		if stored, ok := clampProgress(s, *cmd.Progress); ok {
			p.Progress = stored
		}
	}

	if prev != nil {
		delete(s.Players, prev.Key)
		events = append(events, Event{Type: EvtPlayerLeft, PlayerKey: prev.Key, ConnID: cmd.ConnID})
		events = append(events, afterDeparture(s, now)...)
	}

	if electLeader(s) {
		events = append(events, Event{Type: EvtLeaderChanged, PlayerKey: s.LeaderID})
	}
	return events, nil
}

func presentsLive(s *State, prog *Progress) bool {
	return prog != nil && s.Phase == PhaseRunning && prog.Envelope == s.Live()
}

func leave(s *State, cmd Command, now int64) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerKey]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	delete(s.Players, p.Key)
	events := []Event{{Type: EvtPlayerLeft, PlayerKey: p.Key, ConnID: p.ConnID}}
	return append(events, afterDeparture(s, now)...), nil
}

func disconnect(s *State, cmd Command, now int64) ([]Event, error) {
	p := s.PlayerByConn(cmd.ConnID)
	if p == nil {
		// already replaced by a newer connection
		return nil, nil
	}
	p.Connected = false
	p.ConnID = ""
	p.DisconnectedAt = now

	events := []Event{
		{Type: EvtPlayerDisconnected, PlayerKey: p.Key, ConnID: cmd.ConnID},
		{Type: EvtGraceStarted, PlayerKey: p.Key, At: now + s.Rules.GraceMs},
	}
	if electLeader(s) {
		events = append(events, Event{Type: EvtLeaderChanged, PlayerKey: s.LeaderID})
	}
	// Only a completed result is settled here. Anything that would reset
	// the race waits for the grace period so the racer can resume.
	if s.Phase == PhaseRunning {
		if active, done, withdrawn := tally(s); active > 0 && done == active && withdrawn < active {
			s.Phase = PhaseFinished
			events = append(events, Event{Type: EvtRaceFinished})
		}
	}
	return events, nil
}

func expireGrace(s *State, cmd Command, now int64) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerKey]
	if !ok || p.Connected {
		return nil, nil
	}
	if p.DisconnectedAt+s.Rules.GraceMs > now {
		return nil, nil
	}
	delete(s.Players, p.Key)
	events := []Event{{Type: EvtPlayerPurged, PlayerKey: p.Key}}
	return append(events, afterDeparture(s, now)...), nil
}

func afterDeparture(s *State, now int64) []Event {
	var events []Event
	if electLeader(s) {
		events = append(events, Event{Type: EvtLeaderChanged, PlayerKey: s.LeaderID})
	}
	if len(s.Players) == 0 {
		if s.Phase != PhaseLobby {
			resetToLobby(s)
		}
		return append(events, Event{Type: EvtRoomEmpty})
	}
	compactRanks(s)
	return append(events, settle(s)...)
}

// electLeader keeps a connected leader. Otherwise the earliest connected
// player takes over, and with nobody connected the earliest record holds it.
func electLeader(s *State) bool {
	if p, ok := s.Players[s.LeaderID]; ok && p.Connected {
		return false
	}
	next := ""
	roster := s.Roster()
	for _, p := range roster {
		if p.Connected {
			next = p.Key
			break
		}
	}
	if next == "" && len(roster) > 0 {
		next = roster[0].Key
		if _, ok := s.Players[s.LeaderID]; ok {
			next = s.LeaderID
		}
	}
	if next == s.LeaderID {
		return false
	}
	s.LeaderID = next
	return true
}

func rename(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerKey]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	name := NormalizeName(cmd.Name)
	if name == "" {
		name = defaultName()
	}
	if name == p.Name {
		return nil, nil
	}
	p.Name = name
	return []Event{{Type: EvtProfileUpdated, PlayerKey: p.Key}}, nil
}

func recolor(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerKey]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	color, valid := NormalizeColor(cmd.Color)
	if !valid || color == p.Color {
		return nil, nil
	}
	p.Color = color
	return []Event{{Type: EvtProfileUpdated, PlayerKey: p.Key}}, nil
}

func setObserver(s *State, cmd Command, now int64) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerKey]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if p.Observer == cmd.Enabled {
		return nil, nil
	}
	if !cmd.Enabled {
		if s.Phase.RaceActive() {
			return nil, ErrObserverLocked
		}
		p.Observer = false
		return []Event{{Type: EvtObserverChanged, PlayerKey: p.Key}}, nil
	}

	p.Observer = true
	if s.Phase.RaceActive() {
		p.clearRace()
		compactRanks(s)
	}
	events := []Event{{Type: EvtObserverChanged, PlayerKey: p.Key}}
	return append(events, settle(s)...), nil
}
