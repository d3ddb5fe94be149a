package engine

import (
	"errors"

	"github.com/DoyleJ11/skio-race/pkg/course"
)

var ErrNotLeader = errors.New("only the leader can do that")
var ErrWrongPhase = errors.New("not allowed in the current phase")
var ErrNoRacers = errors.New("no connected racers")
var ErrObserverLocked = errors.New("cannot leave observer mode during a race")
var ErrStale = errors.New("stale or out-of-order event")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrUnsupportedCommand = errors.New("unsupported command")

// IsDenial reports whether err should be told to the requester. Everything
// else is dropped quietly.
func IsDenial(err error) bool {
	return errors.Is(err, ErrNotLeader) ||
		errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrNoRacers) ||
		errors.Is(err, ErrObserverLocked)
}

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseRunning   Phase = "running"
	PhaseFinished  Phase = "finished"
)

func (p Phase) RaceActive() bool {
	return p == PhaseCountdown || p == PhaseRunning
}

type Rules struct {
	CountdownMs int64
	GraceMs     int64
}

func DefaultRules() Rules {
	return Rules{CountdownMs: 5000, GraceMs: 3 * 60 * 1000}
}

// Envelope identifies one race cycle. Gameplay events carry it and are
// ignored unless it matches the room.
type Envelope struct {
	MapSeed   int64
	LegSeed   int64
	StartedAt int64
}

type Progress struct {
	Envelope
	Position course.Position
	Route    []course.RouteStep
	SavedAt  int64
}

// Player is one record in a room. Key is the secret a client rejoins with;
// ID is what everyone else sees.
type Player struct {
	Key      string
	ID       string
	Name     string
	Color    string
	JoinedAt int64
	JoinSeq  int

	ConnID         string
	Connected      bool
	DisconnectedAt int64

	Observer bool

	Finished    bool
	FinishedMs  int64
	Withdrawn   bool
	WithdrawnAt int64
	FinishRank  int
	Splits      []int64
	Progress    *Progress

	// withdrewFrom outlives the reset a last withdrawal causes.
	withdrewFrom Envelope
}

// Racing reports whether p still has a live run in the current cycle.
func (p *Player) Racing() bool {
	return !p.Observer && !p.Finished && !p.Withdrawn
}

func (p *Player) clearRace() {
	p.Finished = false
	p.FinishedMs = 0
	p.Withdrawn = false
	p.WithdrawnAt = 0
	p.FinishRank = 0
	p.Splits = nil
	p.Progress = nil
}

type State struct {
	Code              string
	Phase             Phase
	MapSeed           int64
	LegSeed           int64
	CheckpointCount   int
	ShowPositionOnMap bool
	LeaderID          string
	StartedAt         int64
	CountdownEndsAt   int64
	CreatedAt         int64
	Players           map[string]*Player
	Rules             Rules

	// Course follows the seeds and checkpoint count; see syncCourse.
	Course course.Mirror

	joinSeq int
}

// Live is the envelope of the current cycle.
func (s *State) Live() Envelope {
	return Envelope{MapSeed: s.MapSeed, LegSeed: s.LegSeed, StartedAt: s.StartedAt}
}

func (s *State) syncCourse() bool {
	return s.Course.Sync(s.MapSeed, s.LegSeed, s.CheckpointCount)
}

// CheckpointTotal is how many checkpoints the live course actually has.
func (s *State) CheckpointTotal() int {
	if c := s.Course.Course(); c != nil {
		return len(c.Checkpoints)
	}
	return s.CheckpointCount
}

type CommandType string

const (
	CmdJoin               CommandType = "Join"
	CmdLeave              CommandType = "Leave"
	CmdDisconnect         CommandType = "Disconnect"
	CmdExpireGrace        CommandType = "ExpireGrace"
	CmdRename             CommandType = "Rename"
	CmdRecolor            CommandType = "Recolor"
	CmdNewMap             CommandType = "NewMap"
	CmdNewLeg             CommandType = "NewLeg"
	CmdStart              CommandType = "Start"
	CmdSetCheckpointCount CommandType = "SetCheckpointCount"
	CmdSetShowPosition    CommandType = "SetShowPosition"
	CmdSetObserver        CommandType = "SetObserver"
	CmdSplit              CommandType = "Split"
	CmdFinish             CommandType = "Finish"
	CmdWithdraw           CommandType = "Withdraw"
	CmdProgress           CommandType = "Progress"
	CmdSyncPhase          CommandType = "SyncPhase"
	CmdPromote            CommandType = "Promote"
)

/*
	CmdJoin       -> EvtPlayerJoined | EvtPlayerRejoined (+ EvtConnectionReplaced, EvtGraceCancelled)
	CmdDisconnect -> EvtPlayerDisconnected -> EvtGraceStarted
	CmdStart      -> EvtCountdownScheduled (-> EvtRaceStarted when the countdown is zero)
	CmdFinish     -> EvtPlayerFinished (-> EvtRaceFinished | EvtRaceReset)
	CmdWithdraw   -> EvtPlayerWithdrew (-> EvtRaceFinished | EvtRaceReset)
	any command   -> EvtRaceStarted first if the countdown has run out
*/

type Command struct {
	Type      CommandType
	PlayerKey string
	ConnID    string

	Name    string
	Color   string
	Count   int
	Enabled bool

	SplitIndex int
	Envelope   Envelope
	Progress   *Progress
}

type EventType string

const (
	EvtPlayerJoined       EventType = "PlayerJoined"
	EvtPlayerRejoined     EventType = "PlayerRejoined"
	EvtConnectionReplaced EventType = "ConnectionReplaced"
	EvtPlayerLeft         EventType = "PlayerLeft"
	EvtPlayerDisconnected EventType = "PlayerDisconnected"
	EvtGraceStarted       EventType = "GraceStarted"
	EvtGraceCancelled     EventType = "GraceCancelled"
	EvtPlayerPurged       EventType = "PlayerPurged"
	EvtLeaderChanged      EventType = "LeaderChanged"
	EvtProfileUpdated     EventType = "ProfileUpdated"
	EvtConfigChanged      EventType = "ConfigChanged"
	EvtCourseChanged      EventType = "CourseChanged"
	EvtObserverChanged    EventType = "ObserverChanged"
	EvtCountdownScheduled EventType = "CountdownScheduled"
	EvtCountdownCancelled EventType = "CountdownCancelled"
	EvtRaceStarted        EventType = "RaceStarted"
	EvtRaceFinished       EventType = "RaceFinished"
	EvtRaceReset          EventType = "RaceReset"
	EvtSplitRecorded      EventType = "SplitRecorded"
	EvtPlayerFinished     EventType = "PlayerFinished"
	EvtPlayerWithdrew     EventType = "PlayerWithdrew"
	EvtProgressStored     EventType = "ProgressStored"
	EvtSyncRequested      EventType = "SyncRequested"
	EvtRoomEmpty          EventType = "RoomEmpty"
)

type Event struct {
	Type      EventType
	PlayerKey string
	ConnID    string
	// At is a deadline for timer events (countdown end, grace expiry).
	At int64
}

// Apply runs cmd against s at time now (epoch ms). Rejected commands leave
// s untouched apart from a due countdown promotion, which always happens
// first and is reported even when cmd fails.
func Apply(s *State, cmd Command, now int64) ([]Event, error) {
	var events []Event
	if PromoteIfDue(s, now) {
		events = append(events, Event{Type: EvtRaceStarted, At: s.StartedAt})
	}

	var more []Event
	var err error
	switch cmd.Type {
	case CmdJoin:
		more, err = join(s, cmd, now)
	case CmdLeave:
		more, err = leave(s, cmd, now)
	case CmdDisconnect:
		more, err = disconnect(s, cmd, now)
	case CmdExpireGrace:
		more, err = expireGrace(s, cmd, now)
	case CmdRename:
		more, err = rename(s, cmd)
	case CmdRecolor:
		more, err = recolor(s, cmd)
	case CmdNewMap:
		more, err = reroll(s, cmd, true)
	case CmdNewLeg:
		more, err = reroll(s, cmd, false)
	case CmdStart:
		more, err = start(s, cmd, now)
	case CmdSetCheckpointCount:
		more, err = setCheckpointCount(s, cmd)
	case CmdSetShowPosition:
		more, err = setShowPosition(s, cmd)
	case CmdSetObserver:
		more, err = setObserver(s, cmd, now)
	case CmdSplit:
		more, err = split(s, cmd, now)
	case CmdFinish:
		more, err = finish(s, cmd, now)
	case CmdWithdraw:
		more, err = withdraw(s, cmd, now)
	case CmdProgress:
		more, err = storeProgress(s, cmd)
	case CmdSyncPhase:
		more = []Event{{Type: EvtSyncRequested, PlayerKey: cmd.PlayerKey, ConnID: cmd.ConnID}}
	case CmdPromote:
		// promotion already handled above
	default:
		err = ErrUnsupportedCommand
	}
	return append(events, more...), err
}

// PromoteIfDue moves a countdown whose start time has passed to running.
// It is safe to call from any trigger, any number of times.
func PromoteIfDue(s *State, now int64) bool {
	if s.Phase != PhaseCountdown || s.StartedAt == 0 || now < s.StartedAt {
		return false
	}
	s.Phase = PhaseRunning
	return true
}
