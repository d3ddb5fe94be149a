package engine

import "github.com/DoyleJ11/skio-race/pkg/types"

func EnvelopeFromWire(r types.Race) Envelope {
	return Envelope{MapSeed: r.MapSeed, LegSeed: r.LegSeed, StartedAt: r.StartedAt}
}

func (e Envelope) Wire() types.Race {
	return types.Race{MapSeed: e.MapSeed, LegSeed: e.LegSeed, StartedAt: e.StartedAt}
}

func ProgressFromWire(p *types.Progress) *Progress {
	if p == nil {
		return nil
	}
	return &Progress{
		Envelope: EnvelopeFromWire(p.Race),
		Position: p.Position,
		Route:    p.Route,
		SavedAt:  p.SavedAt,
	}
}

// Wire converts a stored snapshot back to its protocol form. A nil receiver
// gives nil.
func (p *Progress) Wire() *types.Progress {
	if p == nil {
		return nil
	}
	return &types.Progress{
		Race:     p.Envelope.Wire(),
		Position: p.Position,
		Route:    p.Route,
		SavedAt:  p.SavedAt,
	}
}

// CommandFromWire maps a decoded client request onto an engine command. Join
// is handled by the room itself and is not mapped here.
func CommandFromWire(req types.Request) (Command, bool) {
	switch m := req.(type) {
	case types.Rename:
		return Command{Type: CmdRename, Name: m.Name}, true
	case types.Recolor:
		return Command{Type: CmdRecolor, Color: m.Color}, true
	case types.NewMap:
		return Command{Type: CmdNewMap}, true
	case types.NewLeg:
		return Command{Type: CmdNewLeg}, true
	case types.Start:
		return Command{Type: CmdStart}, true
	case types.SetCheckpointCount:
		return Command{Type: CmdSetCheckpointCount, Count: m.Count}, true
	case types.SetShowPositionOnMap:
		return Command{Type: CmdSetShowPosition, Enabled: m.Enabled}, true
	case types.SetObserverMode:
		return Command{Type: CmdSetObserver, Enabled: m.Enabled}, true
	case types.Checkpoint:
		return Command{Type: CmdSplit, SplitIndex: m.SplitIndex, Envelope: EnvelopeFromWire(m.Race)}, true
	case types.Finish:
		return Command{Type: CmdFinish, Envelope: EnvelopeFromWire(m.Race)}, true
	case types.Withdraw:
		return Command{Type: CmdWithdraw, Envelope: EnvelopeFromWire(m.Race)}, true
	case types.ProgressReport:
		snap := m.Snapshot
		return Command{Type: CmdProgress, Progress: ProgressFromWire(&snap)}, true
	case types.SyncPhase:
		return Command{Type: CmdSyncPhase}, true
	default:
		return Command{}, false
	}
}
