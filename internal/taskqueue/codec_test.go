package taskqueue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTaskCodec(t *testing.T) {
	in := Task{
		ID:           "t-1",
		Type:         TaskTypeStartRun,
		WorkflowName: "wf",
		Vars:         map[string]any{"n": 42, "nested": map[string]any{"ok": true}},
		EnqueuedAt:   time.Unix(100, 0).UTC(),
		NotBefore:    time.Unix(200, 0).UTC(),
		Attempts:     2,
	}

	data, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("EncodeTask failed: %v", err)
	}
	out, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("DecodeTask failed: %v", err)
	}

	if out.ID != in.ID || out.Type != in.Type || out.WorkflowName != in.WorkflowName || out.Attempts != 2 {
		t.Fatalf("unexpected task: %+v", out)
	}
	if !out.EnqueuedAt.Equal(in.EnqueuedAt) || !out.NotBefore.Equal(in.NotBefore) {
		t.Fatalf("timestamps changed: %+v", out)
	}
	if out.Vars["n"] != json.Number("42") {
		t.Fatalf("expected json.Number, got %#v", out.Vars["n"])
	}
	if nested, ok := out.Vars["nested"].(map[string]any); !ok || nested["ok"] != true {
		t.Fatalf("unexpected nested vars: %#v", out.Vars["nested"])
	}
}

func TestDecodeTask_Invalid(t *testing.T) {
	if _, err := DecodeTask([]byte("not json")); err == nil {
		t.Fatalf("expected an error")
	}
}
