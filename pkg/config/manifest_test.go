package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/openkeeper/openkeeper/pkg/protocol"
)

func TestParseInlineList(t *testing.T) {
	parser := NewManifestParser()

	manifest := `
conditions: [
	{
		type:   "block_height"
		value:  5000
		target: "0xcallback"
		payload: "0xdeadbeef"
	},
	{
		type:       "price_above"
		value:      2000
		target:     "0xfeed"
		repeatable: true
	},
]
`
	conditions, err := parser.ParseInline(manifest)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}
	if len(conditions) != 2 {
		t.Fatalf("parsed %d conditions, want 2", len(conditions))
	}

	first := conditions[0]
	if first.TriggerType() != protocol.TriggerBlockHeight || first.Value != 5000 {
		t.Errorf("unexpected condition: %+v", first)
	}
	payload, err := first.PayloadBytes()
	if err != nil {
		t.Fatalf("PayloadBytes() error = %v", err)
	}
	if !bytes.Equal(payload, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("payload = %x, want deadbeef", payload)
	}

	if !conditions[1].Repeatable {
		t.Error("repeatable flag lost")
	}
}

func TestParseInlineStruct(t *testing.T) {
	parser := NewManifestParser()

	manifest := `
conditions: {
	heartbeat: {
		type:       "timestamp"
		value:      1700000000
		target:     "0xbeat"
		repeatable: true
	}
}
`
	conditions, err := parser.ParseInline(manifest)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}
	if len(conditions) != 1 {
		t.Fatalf("parsed %d conditions, want 1", len(conditions))
	}
	if conditions[0].TriggerType() != protocol.TriggerTimestamp {
		t.Errorf("type = %s, want timestamp", conditions[0].Type)
	}
}

func TestParseInlineCUEDefaults(t *testing.T) {
	parser := NewManifestParser()

	// CUE templating: shared fields factored out the way operators write
	// real manifests.
	manifest := `
#base: {
	target:     "0xcallback"
	repeatable: true
}

conditions: [
	#base & {type: "price_below", value: 1500},
	#base & {type: "price_above", value: 2500},
]
`
	conditions, err := parser.ParseInline(manifest)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}
	if len(conditions) != 2 {
		t.Fatalf("parsed %d conditions, want 2", len(conditions))
	}
	for _, c := range conditions {
		if c.Target != "0xcallback" || !c.Repeatable {
			t.Errorf("template not applied: %+v", c)
		}
	}
}

func TestParseInlineInvalid(t *testing.T) {
	parser := NewManifestParser()

	tests := []struct {
		name     string
		manifest string
	}{
		{name: "no conditions", manifest: `other: 1`},
		{name: "empty list", manifest: `conditions: []`},
		{name: "unknown trigger", manifest: `conditions: [{type: "moon_phase", value: 1, target: "0xt"}]`},
		{name: "missing target", manifest: `conditions: [{type: "timestamp", value: 1}]`},
		{name: "bad payload hex", manifest: `conditions: [{type: "timestamp", value: 1, target: "0xt", payload: "0xzz"}]`},
		{name: "syntax error", manifest: `conditions: [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.ParseInline(tt.manifest); err == nil {
				t.Error("ParseInline() accepted invalid manifest")
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	parser := NewManifestParser()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "conditions.cue")
	manifest := `conditions: [{type: "block_height", value: 10, target: "0xt"}]`
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	conditions, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(conditions) != 1 {
		t.Fatalf("parsed %d conditions, want 1", len(conditions))
	}

	if _, err := parser.ParseFile(filepath.Join(tmpDir, "missing.cue")); err == nil {
		t.Error("ParseFile() on missing file did not fail")
	}
}
