package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"livehooks/internal/domain/event"
)

// Parse normalizes a raw LiveKit callback body into an InboundEvent. The
// only error is malformed JSON; missing fields never fail, they just
// leave the corresponding attribute empty.
func Parse(body []byte) (*event.InboundEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	kind := event.ParseKind(stringField(payload, "event"))

	e := &event.InboundEvent{
		ID:         extractID(payload, kind),
		Kind:       kind,
		Payload:    json.RawMessage(body),
		ReceivedAt: time.Now().UTC(),
	}

	if room, ok := payload["room"].(map[string]any); ok {
		e.RoomSID = stringField(room, "sid")
		e.RoomName = stringField(room, "name")
	}
	if participant, ok := payload["participant"].(map[string]any); ok {
		e.ParticipantSID = stringField(participant, "sid")
		e.ParticipantIdentity = stringField(participant, "identity")
	}
	if track, ok := payload["track"].(map[string]any); ok {
		e.TrackSID = stringField(track, "sid")
	}

	if egress, ok := payload["egressInfo"].(map[string]any); ok {
		e.EgressID = stringField(egress, "egressId")
	} else {
		e.EgressID = stringField(payload, "egress_id")
	}

	if ingress, ok := payload["ingressInfo"].(map[string]any); ok {
		e.IngressID = stringField(ingress, "ingressId")
	} else {
		e.IngressID = stringField(payload, "ingress_id")
	}

	return e, nil
}

// extractID prefers the payload's own id. The fallback key is
// "<kind>-<createdAt>", which collides for two id-less events sharing a
// kind and timestamp; the duplicate is then silently dropped at
// admission. Known weakness, kept for compatibility with sources that
// rely on the existing dedupe key.
func extractID(payload map[string]any, kind event.Kind) string {
	if id := stringField(payload, "id"); id != "" {
		return id
	}
	var createdAt string
	switch v := payload["createdAt"].(type) {
	case string:
		createdAt = v
	case float64:
		// LiveKit sends createdAt as a unix timestamp
		createdAt = strconv.FormatInt(int64(v), 10)
	}
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s-%s", kind, createdAt)
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
