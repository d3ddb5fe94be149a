package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/internal/room"
)

var ErrHubClosed = errors.New("hub closed")

const (
	codeLength  = 6
	codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the room for Code, creating it if needed. An empty
// Code asks for a fresh room under a newly generated code.
type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room // May be nil
}

// RemoveRoom drops Room if it is still the one registered under Code.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Room          room.Options
	SweepInterval time.Duration
	Logger        *zap.Logger
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 250 * time.Millisecond
	}
	if opts.Room.Logger == nil {
		opts.Room.Logger = opts.Logger
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			for _, rm := range h.rooms {
				select {
				case rm.Inbox() <- room.Sweep{}:
				default:
					// busy room; the next tick will catch it
				}
			}

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				msg.Reply <- h.ensure(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[engine.NormalizeRoomCode(msg.Code)]

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil && rm == msg.Room {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
					go rm.Send(h.ctx, room.Shutdown{})
				}

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					codes = append(codes, code)
				}
				sort.Strings(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(code string) *room.Room {
	code = engine.NormalizeRoomCode(code)
	if code == "" {
		for {
			c, err := generateCode()
			if err != nil {
				h.log.Error("generate room code", zap.Error(err))
				return nil
			}
			if h.rooms[c] == nil {
				code = c
				break
			}
			h.log.Debug("collision on code, regenerating", zap.String("code", c))
		}
	}
	if rm := h.rooms[code]; rm != nil {
		if !rm.Closed() {
			return rm
		}
		// emptied but its RemoveRoom has not arrived yet
		go rm.Send(h.ctx, room.Shutdown{})
	}

	opts := h.opts.Room
	opts.OnEmpty = h.roomEmpty
	rm := room.New(h.ctx, code, opts)
	h.rooms[code] = rm
	h.log.Info("room created", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
	return rm
}

func (h *Hub) roomEmpty(code string, rm *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Code: code, Room: rm}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	// rooms run under h.ctx and stop with it
	clear(h.rooms)
	h.cancel()
}

// Ensure is EnsureRoom as a call.
func (h *Hub) Ensure(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, EnsureRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Get is GetRoom as a call. A missing room is (nil, nil).
func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case codes := <-reply:
		return codes, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *room.Room) (*room.Room, error) {
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var generateCode = func() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
