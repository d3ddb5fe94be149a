package types

import "github.com/DoyleJ11/skio-race/pkg/course"

// RoomState is the full room view broadcast after every accepted change.
// Player ids are public; persistent keys never leave the join ack.
type RoomState struct {
	Version           int          `json:"version"`
	RoomCode          string       `json:"roomCode"`
	Phase             string       `json:"phase"`
	MapSeed           int64        `json:"mapSeed"`
	LegSeed           int64        `json:"legSeed"`
	CheckpointCount   int          `json:"checkpointCount"`
	ShowPositionOnMap bool         `json:"showPositionOnMap"`
	LeaderID          string       `json:"leaderId,omitempty"`
	StartedAt         int64        `json:"startedAt,omitempty"`
	CountdownEndsAt   int64        `json:"countdownEndsAt,omitempty"`
	ServerNow         int64        `json:"serverNow"`
	Players           []PlayerView `json:"players"`
	Results           []ResultView `json:"results"`
}

type PlayerView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Color      string       `json:"color"`
	JoinedAt   int64        `json:"joinedAt"`
	Connected  bool         `json:"connected"`
	Observer   bool         `json:"observer"`
	Finished   bool         `json:"finished"`
	FinishedMs int64        `json:"finishedMs,omitempty"`
	Withdrawn  bool         `json:"withdrawn"`
	FinishRank int          `json:"finishRank,omitempty"`
	Splits     []int64      `json:"splits"`
	Progress   *PlayerTrace `json:"progress,omitempty"`
}

// PlayerTrace is the part of a snapshot other players draw on their map.
type PlayerTrace struct {
	Race
	Position course.Position    `json:"position"`
	Route    []course.RouteStep `json:"route,omitempty"`
}

type ResultView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FinishRank int    `json:"finishRank"`
	FinishedMs int64  `json:"finishedMs,omitempty"`
	Withdrawn  bool   `json:"withdrawn"`
}
