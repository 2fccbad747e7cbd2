package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/openkeeper/openkeeper/pkg/protocol"
)

// ConditionManifest describes one condition to register declaratively.
type ConditionManifest struct {
	// Type is the trigger type.
	Type string `json:"type" validate:"required,oneof=block_height timestamp price_above price_below balance_threshold"`

	// Value is the trigger threshold.
	Value uint64 `json:"value" validate:"required"`

	// Target is the callback address invoked on execution.
	Target string `json:"target" validate:"required"`

	// Payload is an optional hex-encoded callback payload, with or without
	// a 0x prefix.
	Payload string `json:"payload,omitempty"`

	// Repeatable re-arms the condition after an unchallenged execution.
	Repeatable bool `json:"repeatable"`
}

// TriggerType returns the manifest's trigger as a protocol type.
func (m ConditionManifest) TriggerType() protocol.TriggerType {
	return protocol.TriggerType(m.Type)
}

// PayloadBytes decodes the hex payload.
func (m ConditionManifest) PayloadBytes() ([]byte, error) {
	if m.Payload == "" {
		return nil, nil
	}
	raw := strings.TrimPrefix(m.Payload, "0x")
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid payload hex: %w", err)
	}
	return data, nil
}

// ManifestParser parses CUE condition manifests.
type ManifestParser struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewManifestParser creates a manifest parser.
func NewManifestParser() *ManifestParser {
	return &ManifestParser{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// ParseFile reads a .cue manifest file and returns the conditions it declares.
func (p *ManifestParser) ParseFile(path string) ([]ConditionManifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest: %s", errors.Details(err, nil))
	}

	return p.extract(val)
}

// ParseInline parses inline CUE manifest content.
func (p *ManifestParser) ParseInline(content string) ([]ConditionManifest, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest: %s", errors.Details(err, nil))
	}

	return p.extract(val)
}

// extract pulls the conditions field out of the unified CUE value. Conditions
// can be declared as a list or as a struct keyed by arbitrary names.
func (p *ManifestParser) extract(val cue.Value) ([]ConditionManifest, error) {
	conditionsVal := val.LookupPath(cue.ParsePath("conditions"))
	if !conditionsVal.Exists() {
		return nil, fmt.Errorf("manifest has no conditions field")
	}

	var manifests []ConditionManifest

	switch conditionsVal.Kind() {
	case cue.ListKind:
		list, err := conditionsVal.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list conditions: %w", err)
		}
		idx := 0
		for list.Next() {
			m, err := p.decode(list.Value())
			if err != nil {
				return nil, fmt.Errorf("conditions[%d]: %w", idx, err)
			}
			manifests = append(manifests, m)
			idx++
		}

	case cue.StructKind:
		iter, err := conditionsVal.Fields(cue.All())
		if err != nil {
			return nil, fmt.Errorf("failed to iterate conditions: %w", err)
		}
		for iter.Next() {
			m, err := p.decode(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("conditions.%s: %w", iter.Selector(), err)
			}
			manifests = append(manifests, m)
		}

	default:
		return nil, fmt.Errorf("conditions must be a list or a struct, got %s", conditionsVal.Kind())
	}

	if len(manifests) == 0 {
		return nil, fmt.Errorf("manifest declares no conditions")
	}

	return manifests, nil
}

func (p *ManifestParser) decode(val cue.Value) (ConditionManifest, error) {
	var m ConditionManifest
	if err := val.Decode(&m); err != nil {
		return m, fmt.Errorf("failed to decode condition: %w", err)
	}

	if err := p.validator.Struct(m); err != nil {
		return m, fmt.Errorf("validation failed: %w", err)
	}
	if _, err := m.PayloadBytes(); err != nil {
		return m, err
	}

	return m, nil
}
