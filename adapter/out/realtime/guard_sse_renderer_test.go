package realtime

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"guard_server/core/domain"
)

func TestSSERenderer_Broadcast(t *testing.T) {
	r := NewSSERenderer(zerolog.Nop())
	a := r.Subscribe("a")
	b := r.Subscribe("b")

	if err := r.Suppress(context.Background(), "u1", domain.CategoryViolence, 0.9); err != nil {
		t.Fatal(err)
	}
	if err := r.ClearSuppression(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]<-chan *Event{"a": a, "b": b} {
		first, second := <-ch, <-ch
		if first.Type != EventSuppress || first.Category != domain.CategoryViolence || first.UnitID != "u1" {
			t.Errorf("%s first = %+v", name, first)
		}
		if second.Type != EventClearSuppression || second.Seq <= first.Seq {
			t.Errorf("%s second = %+v", name, second)
		}
	}

	if m := r.GetMetrics(); m.MessagesSent != 4 || m.Connections != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestSSERenderer_DropsWhenFull(t *testing.T) {
	r := NewSSERenderer(zerolog.Nop())
	r.Subscribe("slow")

	for i := 0; i < 300; i++ {
		r.Suppress(context.Background(), "u", domain.CategorySexual, 1)
	}
	if m := r.GetMetrics(); m.MessagesDropped != 44 {
		t.Errorf("dropped = %d, want 44", m.MessagesDropped)
	}
}

func TestSSEClient_CloseUnsubscribes(t *testing.T) {
	hub := NewSSEHub(NewSSERenderer(zerolog.Nop()))
	client := hub.CreateClient("c")
	client.Close()
	client.Close()

	if hub.Renderer().ConnectedCount() != 0 {
		t.Error("client should be unsubscribed")
	}
	if _, ok := <-client.Events; ok {
		t.Error("events channel should be closed")
	}
}

func TestSerializeEvent(t *testing.T) {
	data, err := SerializeEvent(&Event{Type: EventSuppress, UnitID: "u", Category: domain.CategoryPolitics, Score: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"type":"suppress"`, `"unit_id":"u"`, `"category":"politics"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("payload %s missing %s", data, want)
		}
	}
}
