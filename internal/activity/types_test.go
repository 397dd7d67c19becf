package activity

import (
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid input event", Event{Kind: KindInput, RunID: "run-1", TS: now, Target: "work:1.0", Detail: "2 lines"}, false},
		{"valid cycle event without target", Event{Kind: KindCycle, RunID: "run-1", TS: now}, false},
		{"unknown kind", Event{Kind: "reboot", RunID: "run-1", TS: now}, true},
		{"empty kind", Event{RunID: "run-1", TS: now}, true},
		{"missing run id", Event{Kind: KindError, TS: now}, true},
		{"blank run id", Event{Kind: KindError, RunID: "   ", TS: now}, true},
		{"zero timestamp", Event{Kind: KindRename, RunID: "run-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
