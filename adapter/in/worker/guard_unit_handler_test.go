package worker

import (
	"context"
	"testing"

	"guard_server/adapter/out/memory"
)

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

func TestUnitHandler_Handle(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantUnits int
		wantErr   bool
	}{
		{"single", `{"id":"a","text":"hello world"}`, 1, false},
		{"array", `[{"text":"one"},{"text":"two"}]`, 2, false},
		{"batch", `{"units":[{"id":"x","text":"one"},{"text":"  "}]}`, 1, false},
		{"empty text", `{"id":"a","text":""}`, 0, false},
		{"garbage", `not json`, 0, true},
		{"empty", ``, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := memory.NewUnitInbox(0)
			notifier := &countingNotifier{}
			h := NewUnitHandler(inbox, notifier)

			err := h.Handle(context.Background(), "guard:units", []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if inbox.Len() != tt.wantUnits {
				t.Errorf("inbox = %d, want %d", inbox.Len(), tt.wantUnits)
			}
			wantNotify := 0
			if tt.wantUnits > 0 {
				wantNotify = 1
			}
			if notifier.n != wantNotify {
				t.Errorf("Notify calls = %d, want %d", notifier.n, wantNotify)
			}
		})
	}
}
