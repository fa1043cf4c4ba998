package event

import (
	"encoding/json"
	"time"
)

// Kind is the closed set of LiveKit lifecycle notifications this system
// understands. Anything else is carried as KindUnknown: stored, counted,
// and fanned out, but handled by no router case.
type Kind string

const (
	KindRoomStarted       Kind = "room_started"
	KindRoomFinished      Kind = "room_finished"
	KindParticipantJoined Kind = "participant_joined"
	KindParticipantLeft   Kind = "participant_left"
	KindTrackPublished    Kind = "track_published"
	KindTrackUnpublished  Kind = "track_unpublished"
	KindEgressStarted     Kind = "egress_started"
	KindEgressEnded       Kind = "egress_ended"
	KindIngressStarted    Kind = "ingress_started"
	KindIngressEnded      Kind = "ingress_ended"
	KindUnknown           Kind = "unknown"
)

// ParseKind maps a wire tag onto the enum. Unrecognized tags keep their
// original string so the stored record and fan-out matching still see the
// tag the source sent, but Known reports false for them.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindRoomStarted, KindRoomFinished,
		KindParticipantJoined, KindParticipantLeft,
		KindTrackPublished, KindTrackUnpublished,
		KindEgressStarted, KindEgressEnded,
		KindIngressStarted, KindIngressEnded:
		return Kind(s)
	case "":
		return KindUnknown
	default:
		return Kind(s)
	}
}

func (k Kind) Known() bool {
	switch k {
	case KindRoomStarted, KindRoomFinished,
		KindParticipantJoined, KindParticipantLeft,
		KindTrackPublished, KindTrackUnpublished,
		KindEgressStarted, KindEgressEnded,
		KindIngressStarted, KindIngressEnded:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// InboundEvent is one admitted webhook callback. Rows are an audit trail:
// inserted once, never mutated or deleted by this service.
type InboundEvent struct {
	ID                  string          `json:"id"`
	Kind                Kind            `json:"event_type"`
	RoomSID             string          `json:"room_sid,omitempty"`
	RoomName            string          `json:"room_name,omitempty"`
	ParticipantSID      string          `json:"participant_sid,omitempty"`
	ParticipantIdentity string          `json:"participant_identity,omitempty"`
	TrackSID            string          `json:"track_sid,omitempty"`
	EgressID            string          `json:"egress_id,omitempty"`
	IngressID           string          `json:"ingress_id,omitempty"`
	Payload             json.RawMessage `json:"payload"`
	ReceivedAt          time.Time       `json:"received_at"`
	Processed           bool            `json:"processed"`
}
