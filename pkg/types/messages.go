// Package types is the JSON protocol spoken over the room websocket.
package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/skio-race/pkg/course"
)

// Client -> server
const (
	TypeJoin                 = "join"
	TypeRename               = "rename"
	TypeRecolor              = "recolor"
	TypeNewMap               = "new_map"
	TypeNewLeg               = "new_leg"
	TypeStart                = "start"
	TypeSetCheckpointCount   = "set_checkpoint_count"
	TypeSetShowPositionOnMap = "set_show_position_on_map"
	TypeSetObserverMode      = "set_observer_mode"
	TypeCheckpoint           = "checkpoint"
	TypeFinish               = "finish"
	TypeWithdraw             = "withdraw"
	TypeProgress             = "progress"
	TypeSyncPhase            = "sync_phase"
)

// Server -> client
const (
	TypeRoomState   = "room_state"
	TypeJoinAck     = "join_ack"
	TypeWithdrawAck = "withdraw_ack"
	TypeDenied      = "room_action_denied"
	TypeError       = "error"
)

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")
var ErrInvalid = errors.New("invalid message")

// Request is one decoded client message. The set is closed: only the types
// in this file implement it.
type Request interface {
	MessageType() string
	validate() error
}

// Race ties a gameplay message to one race cycle.
type Race struct {
	MapSeed   int64 `json:"mapSeed"`
	LegSeed   int64 `json:"legSeed"`
	StartedAt int64 `json:"startedAt"`
}

func (r Race) validate() error {
	if r.MapSeed <= 0 || r.LegSeed <= 0 || r.StartedAt <= 0 {
		return fmt.Errorf("%w: missing race seeds", ErrInvalid)
	}
	return nil
}

// Progress is a racer's resumable snapshot.
type Progress struct {
	Race
	Position course.Position    `json:"position"`
	Route    []course.RouteStep `json:"route,omitempty"`
	SavedAt  int64              `json:"savedAt"`
}

type Join struct {
	RoomCode  string    `json:"roomCode,omitempty"`
	Name      string    `json:"name"`
	PlayerKey string    `json:"playerKey,omitempty"`
	Color     string    `json:"color,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
}

type Rename struct {
	Name string `json:"name"`
}

type Recolor struct {
	Color string `json:"color"`
}

type NewMap struct{}
type NewLeg struct{}
type Start struct{}
type SyncPhase struct{}

type SetCheckpointCount struct {
	Count int `json:"count"`
}

type SetShowPositionOnMap struct {
	Enabled bool `json:"enabled"`
}

type SetObserverMode struct {
	Enabled bool `json:"enabled"`
}

type Checkpoint struct {
	Race
	SplitIndex int `json:"splitIndex"`
}

type Finish struct {
	Race
}

type Withdraw struct {
	Race
}

type ProgressReport struct {
	Snapshot Progress `json:"snapshot"`
}

func (Join) MessageType() string                 { return TypeJoin }
func (Rename) MessageType() string               { return TypeRename }
func (Recolor) MessageType() string              { return TypeRecolor }
func (NewMap) MessageType() string               { return TypeNewMap }
func (NewLeg) MessageType() string               { return TypeNewLeg }
func (Start) MessageType() string                { return TypeStart }
func (SyncPhase) MessageType() string            { return TypeSyncPhase }
func (SetCheckpointCount) MessageType() string   { return TypeSetCheckpointCount }
func (SetShowPositionOnMap) MessageType() string { return TypeSetShowPositionOnMap }
func (SetObserverMode) MessageType() string      { return TypeSetObserverMode }
func (Checkpoint) MessageType() string           { return TypeCheckpoint }
func (Finish) MessageType() string               { return TypeFinish }
func (Withdraw) MessageType() string             { return TypeWithdraw }
func (ProgressReport) MessageType() string       { return TypeProgress }

// UnmarshalJSON drops a snapshot that cannot belong to any race. The join
// still goes through and the player starts from the course start.
func (j *Join) UnmarshalJSON(data []byte) error {
	type plain Join
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Progress != nil && v.Progress.validate() != nil {
		v.Progress = nil
	}
	*j = Join(v)
	return nil
}

func (Join) validate() error                 { return nil }
func (Rename) validate() error               { return nil }
func (Recolor) validate() error              { return nil }
func (NewMap) validate() error               { return nil }
func (NewLeg) validate() error               { return nil }
func (Start) validate() error                { return nil }
func (SyncPhase) validate() error            { return nil }
func (SetCheckpointCount) validate() error   { return nil }
func (SetShowPositionOnMap) validate() error { return nil }
func (SetObserverMode) validate() error      { return nil }

func (c Checkpoint) validate() error {
	if c.SplitIndex < 1 {
		return fmt.Errorf("%w: splitIndex must be positive", ErrInvalid)
	}
	return c.Race.validate()
}

func (p ProgressReport) validate() error {
	if p.Snapshot.SavedAt < 0 {
		return fmt.Errorf("%w: negative savedAt", ErrInvalid)
	}
	return p.Snapshot.Race.validate()
}

var decoders = map[string]func([]byte) (Request, error){
	TypeJoin:                 decodeAs[Join],
	TypeRename:               decodeAs[Rename],
	TypeRecolor:              decodeAs[Recolor],
	TypeNewMap:               decodeAs[NewMap],
	TypeNewLeg:               decodeAs[NewLeg],
	TypeStart:                decodeAs[Start],
	TypeSyncPhase:            decodeAs[SyncPhase],
	TypeSetCheckpointCount:   decodeAs[SetCheckpointCount],
	TypeSetShowPositionOnMap: decodeAs[SetShowPositionOnMap],
	TypeSetObserverMode:      decodeAs[SetObserverMode],
	TypeCheckpoint:           decodeAs[Checkpoint],
	TypeFinish:               decodeAs[Finish],
	TypeWithdraw:             decodeAs[Withdraw],
	TypeProgress:             decodeAs[ProgressReport],
}

func decodeAs[T Request](data []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode reads one client frame of the form {"type": ..., ...fields}.
func Decode(data []byte) (Request, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	decode, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	return decode(data)
}

// Encode writes req with its type tag, the inverse of Decode.
func Encode(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(req.MessageType())
	fields["type"] = tag
	return json.Marshal(fields)
}

type ServerMessage struct {
	Type     string       `json:"type"`
	State    *RoomState   `json:"state,omitempty"`
	Join     *JoinAck     `json:"join,omitempty"`
	Withdraw *WithdrawAck `json:"withdraw,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type JoinAck struct {
	RoomCode  string    `json:"roomCode"`
	PlayerKey string    `json:"playerKey"`
	PlayerID  string    `json:"playerId"`
	Color     string    `json:"color"`
	Progress  *Progress `json:"progress,omitempty"`
}

type WithdrawAck struct {
	Accepted bool   `json:"accepted"`
	Phase    string `json:"phase"`
}
