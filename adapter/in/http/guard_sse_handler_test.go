package http

import (
	"bufio"
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"guard_server/adapter/out/realtime"
)

func TestWriteEvent_Frame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	event := &realtime.Event{Type: realtime.EventSuppress, UnitID: "u1", Category: "violence", Score: 0.9, Seq: 7}
	if err := writeEvent(w, event); err != nil {
		t.Fatalf("writeEvent() error = %v", err)
	}

	frame := buf.String()
	if !strings.HasPrefix(frame, "id: 7\nevent: suppress\ndata: {") {
		t.Errorf("frame = %q", frame)
	}
	if !strings.HasSuffix(frame, "}\n\n") {
		t.Errorf("frame should end with a blank line: %q", frame)
	}
	if !strings.Contains(frame, `"unit_id":"u1"`) {
		t.Errorf("frame missing unit id: %q", frame)
	}
}

func TestSSEHandler_Status(t *testing.T) {
	renderer := realtime.NewSSERenderer(zerolog.Nop())
	hub := realtime.NewSSEHub(renderer)

	client := hub.CreateClient("viewer")
	defer client.Close()

	app := fiber.New()
	NewSSEHandler(hub, zerolog.Nop()).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/events/status", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var got struct {
		Success bool `json:"success"`
		Data    struct {
			Connections int `json:"connections"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if !got.Success || got.Data.Connections != 1 {
		t.Errorf("status = %s", body)
	}
}
