package protocol

import (
	"errors"
	"testing"
)

func TestValidateAcceptsHandshakeWithoutSession(t *testing.T) {
	t.Parallel()

	f := Frame{Type: TypeConnected}
	if err := f.Validate(); err != nil {
		t.Fatalf("connected frame should validate without sessionId: %v", err)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	t.Parallel()

	f := Frame{Type: "presence", SessionID: "s1"}
	err := f.Validate()
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestValidateRequiresSessionID(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeUserMessage, TypeTyping, TypeAgentResponse, TypeDone, TypeError} {
		f := Frame{Type: typ, Content: "hi"}
		if err := f.Validate(); !errors.Is(err, ErrMissingSessionID) {
			t.Errorf("%s: expected ErrMissingSessionID, got %v", typ, err)
		}
	}
}

func TestValidateRequiresContentOnPayloadFrames(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeUserMessage, TypeAgentResponse, TypeError} {
		f := Frame{Type: typ, SessionID: "s1"}
		if err := f.Validate(); !errors.Is(err, ErrMissingContent) {
			t.Errorf("%s: expected ErrMissingContent, got %v", typ, err)
		}
	}
}

func TestValidateAllowsEmptyContentOnControlFrames(t *testing.T) {
	t.Parallel()

	for _, f := range []Frame{Typing("s1"), Done("s1")} {
		if err := f.Validate(); err != nil {
			t.Errorf("%s: expected control frame to validate, got %v", f.Type, err)
		}
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
	if _, err := Decode([]byte(`{"type":"ping","sessionId":"s1"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatal("expected ErrUnknownType for unknown frame kind")
	}
}

func TestDecodeRoundTripsUserMessage(t *testing.T) {
	t.Parallel()

	out := UserMessage("s1", "Book dentist tomorrow")
	data, err := out.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	in, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if in.Type != TypeUserMessage || in.SessionID != "s1" || in.Content != "Book dentist tomorrow" || in.Role != RoleUser {
		t.Fatalf("unexpected frame after round trip: %+v", in)
	}
	if in.Timestamp == "" {
		t.Fatal("expected advisory timestamp to be set")
	}
}
