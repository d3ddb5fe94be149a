package room

import (
	"sort"

	"github.com/DoyleJ11/skio-race/internal/archive"
	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

func buildState(s *engine.State, version int, now int64) types.RoomState {
	st := types.RoomState{
		Version:           version,
		RoomCode:          s.Code,
		Phase:             string(s.Phase),
		MapSeed:           s.MapSeed,
		LegSeed:           s.LegSeed,
		CheckpointCount:   s.CheckpointCount,
		ShowPositionOnMap: s.ShowPositionOnMap,
		StartedAt:         s.StartedAt,
		CountdownEndsAt:   s.CountdownEndsAt,
		ServerNow:         now,
		Players:           []types.PlayerView{},
		Results:           []types.ResultView{},
	}
	if leader, ok := s.Players[s.LeaderID]; ok {
		st.LeaderID = leader.ID
	}

	roster := s.Roster()
	for _, p := range roster {
		pv := types.PlayerView{
			ID:         p.ID,
			Name:       p.Name,
			Color:      p.Color,
			JoinedAt:   p.JoinedAt,
			Connected:  p.Connected,
			Observer:   p.Observer,
			Finished:   p.Finished,
			FinishedMs: p.FinishedMs,
			Withdrawn:  p.Withdrawn,
			FinishRank: p.FinishRank,
			Splits:     append([]int64{}, p.Splits...),
		}
		if p.Progress != nil && p.Progress.Envelope == s.Live() {
			pv.Progress = &types.PlayerTrace{
				Race:     p.Progress.Envelope.Wire(),
				Position: p.Progress.Position,
				Route:    p.Progress.Route,
			}
		}
		st.Players = append(st.Players, pv)
	}

	for _, p := range ranked(roster) {
		st.Results = append(st.Results, types.ResultView{
			ID:         p.ID,
			Name:       p.Name,
			FinishRank: p.FinishRank,
			FinishedMs: p.FinishedMs,
			Withdrawn:  p.Withdrawn,
		})
	}
	return st
}

// ranked orders results by rank, then time.
func ranked(roster []*engine.Player) []*engine.Player {
	var out []*engine.Player
	for _, p := range roster {
		if p.FinishRank > 0 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinishRank != out[j].FinishRank {
			return out[i].FinishRank < out[j].FinishRank
		}
		return out[i].FinishedMs < out[j].FinishedMs
	})
	return out
}

func buildArchive(s *engine.State, now int64) archive.Race {
	race := archive.Race{
		RoomCode:        s.Code,
		MapSeed:         s.MapSeed,
		LegSeed:         s.LegSeed,
		CheckpointCount: s.CheckpointCount,
		StartedAt:       s.StartedAt,
		FinishedAt:      now,
	}
	for _, p := range ranked(s.Roster()) {
		race.Results = append(race.Results, archive.Result{
			PlayerID:   p.ID,
			Name:       p.Name,
			Color:      p.Color,
			Rank:       p.FinishRank,
			FinishedMs: p.FinishedMs,
			Withdrawn:  p.Withdrawn,
			Splits:     append([]int64{}, p.Splits...),
		})
	}
	return race
}
