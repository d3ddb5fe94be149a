package room

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/skio-race/internal/archive"
	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

// ErrRoomClosed is returned to joins that reach a room after its last player
// left. The caller should ask the hub for the room again.
var ErrRoomClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ConnID  string
	Request types.Join
	Outbox  chan types.ServerMessage
	Reply   chan JoinResult
}

type JoinResult struct {
	PlayerKey string
	Err       error
}

// Leave is a deliberate exit (switching rooms). The record goes away now.
type Leave struct{ ConnID string }

// Disconnect is a dropped socket. The record is kept for the grace period.
type Disconnect struct{ ConnID string }

type FromClient struct {
	ConnID string
	Cmd    engine.Command
}

// Sweep re-checks time-based transitions; the hub sends one periodically.
type Sweep struct{}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type countdownFired struct{ gen int }
type graceFired struct {
	key string
	gen int
}
type flushFired struct{}

func (Join) isRoomMsg()           {}
func (Leave) isRoomMsg()          {}
func (Disconnect) isRoomMsg()     {}
func (FromClient) isRoomMsg()     {}
func (Sweep) isRoomMsg()          {}
func (GetState) isRoomMsg()       {}
func (Shutdown) isRoomMsg()       {}
func (countdownFired) isRoomMsg() {}
func (graceFired) isRoomMsg()     {}
func (flushFired) isRoomMsg()     {}

type View struct {
	Version    int
	NumClients int
	Closed     bool
	State      types.RoomState
}

type Options struct {
	Rules          engine.Rules
	ProgressPerSec float64
	Logger         *zap.Logger
	Metrics        *metrics.Registry
	Archive        archive.Recorder
	// OnEmpty runs on its own goroutine once the roster empties.
	OnEmpty func(code string, r *Room)
	Now     func() time.Time
	// IdleTimeout closes a room nobody ever joined. Zero means 10 minutes.
	IdleTimeout time.Duration
}

type client struct {
	key string
	out chan types.ServerMessage
}

type graceTimer struct {
	timer *time.Timer
	gen   int
}

type Room struct {
	code    string
	inbox   chan Msg
	state   *engine.State
	version int
	clients map[string]*client
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	closing atomic.Bool

	log     *zap.Logger
	metrics *metrics.Registry
	archive archive.Recorder
	onEmpty func(string, *Room)
	now     func() time.Time
	idle    time.Duration

	countdown    *time.Timer
	countdownGen int
	grace        map[string]*graceTimer
	graceGen     int

	limiter      *rate.Limiter
	flushPending bool
	flushTimer   *time.Timer
	archivedAt   int64
}

func New(parent context.Context, code string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Archive == nil {
		opts.Archive = archive.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	limit := rate.Inf
	if opts.ProgressPerSec > 0 {
		limit = rate.Limit(opts.ProgressPerSec)
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		clients: make(map[string]*client),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     opts.Logger.With(zap.String("room", code)),
		metrics: opts.Metrics,
		archive: opts.Archive,
		onEmpty: opts.OnEmpty,
		now:     opts.Now,
		idle:    opts.IdleTimeout,
		grace:   make(map[string]*graceTimer),
		limiter: rate.NewLimiter(limit, 1),
	}
	r.state = engine.NewState(code, r.nowMs(), opts.Rules)
	r.metrics.RoomOpened()

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Inbox exposes the inbox so the hub, tests and the ws layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Closed reports whether the room has emptied and stopped taking joins.
func (r *Room) Closed() bool { return r.closing.Load() }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send delivers m unless the room or ctx finishes first.
func (r *Room) Send(ctx context.Context, m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Room) nowMs() int64 { return r.now().UnixMilli() }

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				c := r.clients[msg.ConnID]
				if c == nil {
					break
				}
				delete(r.clients, msg.ConnID)
				r.apply(engine.Command{Type: engine.CmdLeave, PlayerKey: c.key, ConnID: msg.ConnID}, "")

			case Disconnect:
				delete(r.clients, msg.ConnID)
				r.apply(engine.Command{Type: engine.CmdDisconnect, ConnID: msg.ConnID}, "")

			case FromClient:
				r.handleClient(msg)

			case Sweep:
				r.apply(engine.Command{Type: engine.CmdPromote}, "")
				if len(r.state.Players) == 0 && r.nowMs()-r.state.CreatedAt >= r.idle.Milliseconds() {
					r.close()
				}

			case countdownFired:
				if msg.gen != r.countdownGen {
					break // superseded
				}
				r.countdown = nil
				r.apply(engine.Command{Type: engine.CmdPromote}, "")

			case graceFired:
				gt := r.grace[msg.key]
				if gt == nil || gt.gen != msg.gen {
					break
				}
				delete(r.grace, msg.key)
				r.apply(engine.Command{Type: engine.CmdExpireGrace, PlayerKey: msg.key}, "")

			case flushFired:
				r.flushPending = false
				r.flushTimer = nil
				r.broadcast()

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Closed:     r.closed,
					State:      buildState(r.state, r.version, r.nowMs()),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	if r.closed {
		msg.Reply <- JoinResult{Err: ErrRoomClosed}
		return
	}

	cmd := engine.Command{
		Type:      engine.CmdJoin,
		PlayerKey: msg.Request.PlayerKey,
		ConnID:    msg.ConnID,
		Name:      msg.Request.Name,
		Color:     msg.Request.Color,
		Progress:  engine.ProgressFromWire(msg.Request.Progress),
	}
	events, err := engine.Apply(r.state, cmd, r.nowMs())
	if err != nil {
		msg.Reply <- JoinResult{Err: err}
		return
	}

	key := ""
	for _, ev := range events {
		if ev.Type == engine.EvtPlayerJoined || ev.Type == engine.EvtPlayerRejoined {
			key = ev.PlayerKey
		}
	}
	p := r.state.Players[key]
	r.clients[msg.ConnID] = &client{key: key, out: msg.Outbox}
	r.send(msg.ConnID, types.ServerMessage{Type: types.TypeJoinAck, Join: &types.JoinAck{
		RoomCode:  r.code,
		PlayerKey: key,
		PlayerID:  p.ID,
		Color:     p.Color,
		Progress:  engine.ResumableProgress(r.state, key).Wire(),
	}})
	msg.Reply <- JoinResult{PlayerKey: key}

	r.log.Debug("player joined", zap.String("player", p.ID), zap.String("conn", msg.ConnID), zap.Bool("observer", p.Observer))
	r.afterEvents(events, msg.ConnID)
}

func (r *Room) handleClient(msg FromClient) {
	c := r.clients[msg.ConnID]
	if c == nil {
		return
	}
	cmd := msg.Cmd
	cmd.PlayerKey = c.key
	cmd.ConnID = msg.ConnID

	events, err := engine.Apply(r.state, cmd, r.nowMs())
	if cmd.Type == engine.CmdWithdraw {
		r.send(msg.ConnID, types.ServerMessage{Type: types.TypeWithdrawAck, Withdraw: &types.WithdrawAck{
			Accepted: err == nil,
			Phase:    string(r.state.Phase),
		}})
	}
	switch {
	case err == nil:
	case engine.IsDenial(err):
		r.metrics.IncDenied()
		r.send(msg.ConnID, types.ServerMessage{Type: types.TypeDenied, Error: err.Error()})
	default:
		r.metrics.IncStaleDropped()
		r.log.Debug("dropped command", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}
	r.afterEvents(events, msg.ConnID)
}

// apply runs an internally generated command. Errors there only mean the
// command had nothing to do.
func (r *Room) apply(cmd engine.Command, requester string) {
	events, err := engine.Apply(r.state, cmd, r.nowMs())
	if err != nil {
		r.log.Debug("internal command rejected", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}
	r.afterEvents(events, requester)
}

func (r *Room) afterEvents(events []engine.Event, requester string) {
	if len(events) == 0 {
		return
	}

	progressOnly, syncOnly := true, true
	for _, ev := range events {
		if ev.Type != engine.EvtProgressStored {
			progressOnly = false
		}
		if ev.Type != engine.EvtSyncRequested {
			syncOnly = false
		}

		switch ev.Type {
		case engine.EvtCountdownScheduled:
			r.armCountdown(ev.At)
		case engine.EvtRaceStarted, engine.EvtCountdownCancelled, engine.EvtRaceReset:
			r.stopCountdown()
		case engine.EvtGraceStarted:
			r.armGrace(ev.PlayerKey, ev.At)
		case engine.EvtGraceCancelled, engine.EvtPlayerPurged, engine.EvtPlayerLeft:
			r.stopGrace(ev.PlayerKey)
		case engine.EvtConnectionReplaced:
			r.dropClient(ev.ConnID, "connection replaced")
		case engine.EvtRaceFinished:
			r.archiveRace()
		case engine.EvtRoomEmpty:
			r.close()
		}
	}

	switch {
	case r.closed:
	case syncOnly:
		r.send(requester, r.stateMessage())
	case progressOnly:
		r.throttledBroadcast()
	default:
		r.version++
		r.broadcast()
	}
}

func (r *Room) armCountdown(at int64) {
	r.stopCountdown()
	r.countdownGen++
	gen := r.countdownGen
	d := time.Duration(at-r.nowMs()) * time.Millisecond
	r.countdown = time.AfterFunc(d, func() { r.post(countdownFired{gen: gen}) })
}

func (r *Room) stopCountdown() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	r.countdownGen++
}

func (r *Room) armGrace(key string, at int64) {
	r.stopGrace(key)
	r.graceGen++
	gen := r.graceGen
	d := time.Duration(at-r.nowMs()) * time.Millisecond
	r.grace[key] = &graceTimer{
		gen:   gen,
		timer: time.AfterFunc(d, func() { r.post(graceFired{key: key, gen: gen}) }),
	}
}

func (r *Room) stopGrace(key string) {
	if gt := r.grace[key]; gt != nil {
		gt.timer.Stop()
		delete(r.grace, key)
	}
}

// throttledBroadcast sends progress-only changes at most at the configured
// rate. A suppressed update schedules one trailing flush so the latest
// positions always go out.
func (r *Room) throttledBroadcast() {
	if r.flushPending {
		r.metrics.IncThrottled()
		return
	}
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay == 0 {
		r.broadcast()
		return
	}
	r.metrics.IncThrottled()
	r.flushPending = true
	r.flushTimer = time.AfterFunc(delay, func() { r.post(flushFired{}) })
}

func (r *Room) stateMessage() types.ServerMessage {
	st := buildState(r.state, r.version, r.nowMs())
	return types.ServerMessage{Type: types.TypeRoomState, State: &st}
}

func (r *Room) broadcast() {
	if len(r.clients) == 0 {
		return
	}
	r.metrics.IncBroadcasts()
	msg := r.stateMessage()

	var slow []string
	for id, c := range r.clients {
		select {
		case c.out <- msg:
			//ok
		default:
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		// Client is slow/full - drop them. The socket notices its outbox
		// closing and goes away; the record enters the grace period.
		r.metrics.IncSlowClients()
		r.dropClient(id, "slow client")
		r.apply(engine.Command{Type: engine.CmdDisconnect, ConnID: id}, "")
	}
}

func (r *Room) send(connID string, msg types.ServerMessage) {
	c := r.clients[connID]
	if c == nil {
		return
	}
	select {
	case c.out <- msg:
	default:
		r.metrics.IncSlowClients()
		r.dropClient(connID, "slow client")
	}
}

func (r *Room) dropClient(connID, reason string) {
	c := r.clients[connID]
	if c == nil {
		return
	}
	r.log.Debug("dropping client", zap.String("conn", connID), zap.String("reason", reason))
	close(c.out)
	delete(r.clients, connID)
}

func (r *Room) archiveRace() {
	r.metrics.IncRacesFinished()
	if r.archivedAt == r.state.StartedAt {
		return
	}
	r.archivedAt = r.state.StartedAt
	race := buildArchive(r.state, r.nowMs())
	if !r.archive.Enqueue(race) {
		r.log.Warn("race not archived")
	}
}

func (r *Room) close() {
	if r.closed {
		return
	}
	r.closed = true
	r.closing.Store(true)
	r.stopTimers()
	r.log.Info("room empty")
	if r.onEmpty != nil {
		go r.onEmpty(r.code, r)
	}
}

func (r *Room) stopTimers() {
	r.stopCountdown()
	for key := range r.grace {
		r.stopGrace(key)
	}
	if r.flushTimer != nil {
		r.flushTimer.Stop()
		r.flushTimer = nil
	}
	r.flushPending = false
}

func (r *Room) shutdown() {
	r.stopTimers()
	for id, c := range r.clients {
		close(c.out) // Tell client no more messages
		delete(r.clients, id)
	}
	r.metrics.RoomClosed()
	r.cancel()
}
