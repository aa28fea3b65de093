package protocol

import (
	"testing"

	"github.com/adamavenir/coord/internal/coorderr"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
	}{
		{"task assign", TaskAssign{TaskID: "t1", Description: "do the thing", Context: map[string]any{"k": "v"}}},
		{"progress", Progress{TaskID: "t1", AgentID: "a1", Progress: 0.5, Message: "halfway"}},
		{"result", Result{TaskID: "t1", AgentID: "a1", Status: "done", Summary: "finished"}},
		{"idle", Idle{AgentID: "a1"}},
		{"question", Question{QuestionID: "q1", Question: "continue?", Options: []string{"yes", "no"}}},
		{"permission request", PermissionRequest{RequestID: "r1", Action: "write", Resource: "/tmp/x"}},
		{"permission response", PermissionResponse{RequestID: "r1", Decision: DecisionAllow}},
		{"terminate", Terminate{Reason: "done"}},
	}

	for _, tc := range cases {
		for _, compress := range []bool{false, true} {
			t.Run(tc.name, func(t *testing.T) {
				body, contentType, err := Serialize(tc.msg, compress)
				if err != nil {
					t.Fatalf("serialize: %v", err)
				}
				if compress && contentType != GzipContentType() {
					t.Fatalf("expected gzip content type, got %q", contentType)
				}
				if !compress && contentType != BaseContentType() {
					t.Fatalf("expected base content type, got %q", contentType)
				}

				got, err := Deserialize(body, contentType)
				if err != nil {
					t.Fatalf("deserialize: %v", err)
				}
				if got.Kind() != tc.msg.Kind() {
					t.Fatalf("kind mismatch: got %s, want %s", got.Kind(), tc.msg.Kind())
				}
			})
		}
	}
}

func TestDeserializeUnknownType(t *testing.T) {
	_, err := Deserialize([]byte(`{"type":"NotAThing"}`), BaseContentType())
	if coorderr.KindOf(err) != coorderr.KindCodecUnknownType {
		t.Fatalf("expected KindCodecUnknownType, got %v", err)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"task_id":"t1"}`, // missing type field
		`{"type":""}`,
	}
	for _, body := range cases {
		_, err := Deserialize([]byte(body), BaseContentType())
		if coorderr.KindOf(err) != coorderr.KindCodecMalformed {
			t.Fatalf("body %q: expected KindCodecMalformed, got %v", body, err)
		}
	}
}

func TestDeserializeGzipContentTypeDetection(t *testing.T) {
	body, contentType, err := Serialize(Idle{AgentID: "a1"}, true)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := Deserialize(body, contentType); err != nil {
		t.Fatalf("expected gzip body to decode cleanly, got %v", err)
	}

	// Decoding gzip bytes while claiming the base (uncompressed) content
	// type must fail as malformed, not panic.
	if _, err := Deserialize(body, BaseContentType()); coorderr.KindOf(err) != coorderr.KindCodecMalformed {
		t.Fatalf("expected malformed when content-type lies about compression, got %v", err)
	}
}
