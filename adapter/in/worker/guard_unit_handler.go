// Package worker adapts stream messages into scan work.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"guard_server/adapter/out/messaging"
	"guard_server/core/domain"
	"guard_server/pkg/logger"
)

// UnitAdder accepts discovered units.
type UnitAdder interface {
	Add(units ...domain.TextUnit) []domain.UnitID
}

// Notifier is told when new units are available.
type Notifier interface {
	Notify()
}

// UnitHandler implements messaging.JobHandler for the unit stream. A
// message may carry one unit, an array of units or {"units": [...]}.
type UnitHandler struct {
	inbox    UnitAdder
	notifier Notifier
}

var _ messaging.JobHandler = (*UnitHandler)(nil)

// NewUnitHandler creates a unit handler.
func NewUnitHandler(inbox UnitAdder, notifier Notifier) *UnitHandler {
	return &UnitHandler{inbox: inbox, notifier: notifier}
}

// Handle decodes units and queues them. Undecodable payloads return an
// error so the message stays pending and is eventually dead-lettered.
func (h *UnitHandler) Handle(ctx context.Context, stream string, data []byte) error {
	msgs, err := DecodeUnitMessages(data)
	if err != nil {
		return fmt.Errorf("decode %s message: %w", stream, err)
	}

	units := make([]domain.TextUnit, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		units = append(units, domain.TextUnit{ID: domain.UnitID(m.ID), Text: m.Text})
	}
	if len(units) == 0 {
		return nil
	}

	ids := h.inbox.Add(units...)
	logger.WithContext(ctx).
		WithField("stream", stream).
		Debug("queued %d units", len(ids))
	h.notifier.Notify()
	return nil
}

// DecodeUnitMessages accepts a single unit, an array or a {"units": [...]} batch.
func DecodeUnitMessages(data []byte) ([]messaging.UnitMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if data[0] == '[' {
		var list []messaging.UnitMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var envelope struct {
		messaging.UnitMessage
		Units []messaging.UnitMessage `json:"units"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.Units != nil {
		return envelope.Units, nil
	}
	return []messaging.UnitMessage{envelope.UnitMessage}, nil
}
