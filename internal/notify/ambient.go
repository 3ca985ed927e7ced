package notify

import (
	"fmt"

	"github.com/adt-framework/adt-console/internal/governance"
)

// Level is the coarse ambient state.
type Level string

const (
	LevelIdle    Level = "idle"
	LevelNominal Level = "nominal"
	LevelWarning Level = "warning"
)

// Ambient is the always-visible summary of console health.
type Ambient struct {
	Sessions    int
	Escalations int
	Level       Level
	Text        string
}

// ComputeAmbient summarizes events and the session count.
func ComputeAmbient(events []governance.Event, sessions int) Ambient {
	escalations := 0
	for _, ev := range events {
		if IsEscalation(ev.ActionType) {
			escalations++
		}
	}
	return withLevel(Ambient{Sessions: sessions, Escalations: escalations})
}

func withLevel(a Ambient) Ambient {
	switch {
	case a.Sessions == 0:
		a.Level = LevelIdle
	case a.Escalations > 0:
		a.Level = LevelWarning
	default:
		a.Level = LevelNominal
	}
	a.Text = fmt.Sprintf("%d sessions, %d escalations", a.Sessions, a.Escalations)
	return a
}
