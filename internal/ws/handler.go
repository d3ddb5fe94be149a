package ws

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/internal/hub"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/internal/room"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	leaveTimeout = time.Second
)

type Options struct {
	Hub            *hub.Hub
	OriginPatterns []string
	// MessagesPerSec caps inbound frames per connection; <= 0 disables it.
	MessagesPerSec float64
	Logger         *zap.Logger
	Metrics        *metrics.Registry
}

func Handler(opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		limit, burst := rate.Inf, 1
		if opts.MessagesPerSec > 0 {
			limit = rate.Limit(opts.MessagesPerSec)
			burst = max(1, int(math.Ceil(opts.MessagesPerSec)))
		}
		s := &session{
			id:          uuid.NewString(),
			conn:        conn,
			hub:         opts.Hub,
			metrics:     opts.Metrics,
			limiter:     rate.NewLimiter(limit, burst),
			defaultCode: r.URL.Query().Get("code"),
		}
		s.log = log.With(zap.String("conn", s.id))

		opts.Metrics.ConnOpened()
		defer opts.Metrics.ConnClosed()
		s.log.Debug("connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go s.keepalive(ctx)

		s.readLoop(ctx)
		s.detach()
		s.log.Debug("disconnected")
	}
}

// session is one socket. Only the reader goroutine touches the room fields;
// the pump goroutine only writes.
type session struct {
	id          string
	conn        *websocket.Conn
	hub         *hub.Hub
	log         *zap.Logger
	metrics     *metrics.Registry
	limiter     *rate.Limiter
	defaultCode string

	room *room.Room
	key  string
	stop chan struct{}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.log.Debug("read ended", zap.Error(err))
			}
			return
		}
		s.metrics.IncMessagesIn()

		if !s.limiter.Allow() {
			s.metrics.IncRateLimited()
			s.writeError(ctx, "rate limited")
			continue
		}

		req, err := types.Decode(data)
		if err != nil {
			s.metrics.IncMalformed()
			s.writeError(ctx, err.Error())
			continue
		}

		if j, ok := req.(types.Join); ok {
			s.join(ctx, j)
			continue
		}
		if s.room == nil {
			s.writeError(ctx, "join a room first")
			continue
		}
		cmd, ok := engine.CommandFromWire(req)
		if !ok {
			s.writeError(ctx, "unsupported message")
			continue
		}
		s.room.Send(ctx, room.FromClient{ConnID: s.id, Cmd: cmd})
	}
}

// join attaches the socket to the requested room, leaving the current one if
// it is a different room. A room that closed under us is looked up again
// once through the hub.
func (s *session) join(ctx context.Context, req types.Join) {
	code := req.RoomCode
	if code == "" {
		code = s.defaultCode
	}

	for attempt := 0; attempt < 2; attempt++ {
		rm, err := s.hub.Ensure(ctx, code)
		if err != nil || rm == nil {
			s.writeError(ctx, "room unavailable")
			return
		}
		if rm != s.room {
			s.leave()
		} else if req.PlayerKey == "" {
			// same room again: keep the record instead of adding a second one
			req.PlayerKey = s.key
		}

		out := make(chan types.ServerMessage, outboxSize)
		reply := make(chan room.JoinResult, 1)
		if !rm.Send(ctx, room.Join{ConnID: s.id, Request: req, Outbox: out, Reply: reply}) {
			continue
		}

		var res room.JoinResult
		select {
		case res = <-reply:
		case <-rm.Done():
			continue
		case <-ctx.Done():
			return
		}
		if errors.Is(res.Err, room.ErrRoomClosed) {
			s.log.Debug("room closed during join, retrying", zap.String("room", rm.Code()))
			continue
		}
		if res.Err != nil {
			s.writeError(ctx, res.Err.Error())
			return
		}

		s.key = res.PlayerKey
		s.attach(rm, out)
		s.log.Info("joined room", zap.String("room", rm.Code()))
		return
	}
	s.writeError(ctx, "room unavailable")
}

func (s *session) attach(rm *room.Room, out chan types.ServerMessage) {
	s.stopPump()
	s.room = rm
	s.stop = make(chan struct{})
	go s.pump(out, s.stop)
}

func (s *session) stopPump() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// leave is a deliberate exit from the current room.
func (s *session) leave() {
	if s.room == nil {
		return
	}
	s.stopPump()
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	s.room.Send(ctx, room.Leave{ConnID: s.id})
	s.room, s.key = nil, ""
}

// detach reports a dropped socket; the room keeps the record for the grace
// period.
func (s *session) detach() {
	if s.room == nil {
		return
	}
	s.stopPump()
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	s.room.Send(ctx, room.Disconnect{ConnID: s.id})
	s.room, s.key = nil, ""
}

// pump drains one room outbox onto the socket. A closed outbox means the
// room dropped us, so the socket goes too.
func (s *session) pump(out <-chan types.ServerMessage, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-out:
			if !ok {
				s.conn.Close(websocket.StatusGoingAway, "dropped by room")
				return
			}
			if err := s.write(context.Background(), msg); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				s.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *session) write(ctx context.Context, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

func (s *session) writeError(ctx context.Context, text string) {
	_ = s.write(ctx, types.ServerMessage{Type: types.TypeError, Error: text})
}

func (s *session) keepalive(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
