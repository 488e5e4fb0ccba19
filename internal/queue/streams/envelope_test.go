package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		EventID:    "ev-1",
		TaskType:   "graph.refresh",
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"user_id":"u1"}`),
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if got.EventID != "ev-1" || got.TaskType != "graph.refresh" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if string(got.Data) != `{"user_id":"u1"}` {
		t.Fatalf("unexpected data: %s", got.Data)
	}
}

func TestValidateBasicRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing event id", Envelope{TaskType: "t", Data: json.RawMessage(`{}`)}},
		{"missing task type", Envelope{EventID: "e", Data: json.RawMessage(`{}`)}},
		{"missing data", Envelope{EventID: "e", TaskType: "t"}},
		{"negative attempt", Envelope{EventID: "e", TaskType: "t", Attempt: -1, Data: json.RawMessage(`{}`)}},
	}
	for _, tc := range cases {
		if err := tc.env.ValidateBasic(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateBasicStampsOccurredAt(t *testing.T) {
	env := Envelope{EventID: "e", TaskType: "t", Data: json.RawMessage(`{}`)}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be stamped")
	}
}

func TestUnmarshalEnvelopeBadJSON(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("{broken")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
