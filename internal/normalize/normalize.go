// Package normalize turns raw tool-result payloads into canonical artifact
// results.
//
// The invocation transport has reported terminal success in three
// structurally different wire shapes over its lifetime:
//
//	(a) a flat object flagged shouldCreateArtifact with status "success"
//	(b) a flat object with success == true
//	(c) an MCP-style nested structuredContent.result[0] object with
//	    success == true and isError == false
//
// All three still occur in recorded sessions, so the normalizer models them
// as a tagged decoder chain tried in that fixed priority order; the first
// matching shape wins. Inputs matching no shape, or flagged as still
// in-progress or errored, produce a Skip instead of a Result. Nothing here
// panics: unparsable nested JSON is repaired when possible and reported as
// a Skip when not.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/vizorai/canvas/internal/artifact"
)

// Shape tags which legacy wire shape a result was decoded from.
type Shape string

const (
	ShapeFlagged Shape = "flagged" // shouldCreateArtifact + status=="success"
	ShapeFlat    Shape = "flat"    // success==true
	ShapeNested  Shape = "nested"  // structuredContent.result[0]
)

// Result is the canonical form of one terminal tool success.
type Result struct {
	ArtifactID string
	// IDGenerated is true when the wire carried no identity and ArtifactID
	// was freshly minted. Dispatchers use this to substitute a stable
	// tool-call identity, since a minted id changes on every re-delivery.
	IDGenerated bool
	Kind        artifact.Kind
	Title       string
	GroupName   string // "" when the wire carried no explicit canvas name
	Payload     map[string]any
	Metadata    map[string]any
	Shape       Shape
}

// SkipReason classifies why a tool part produced no artifact.
type SkipReason string

const (
	SkipInProgress   SkipReason = "in_progress"
	SkipErrored      SkipReason = "errored"
	SkipUnknownShape SkipReason = "unknown_shape"
	SkipBadJSON      SkipReason = "bad_json"

	// SkipValidationFailed is raised by the scanner, not Normalize: the
	// payload decoded cleanly but was rejected by schema validation.
	SkipValidationFailed SkipReason = "validation_failed"
)

// Skip reports a non-terminal or unusable tool part. Err carries the
// diagnostic for logging; it is never nil for SkipBadJSON.
type Skip struct {
	Reason SkipReason
	Err    error
}

func (s *Skip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %v", s.Reason, s.Err)
	}
	return string(s.Reason)
}

// controlKeys are wire-protocol fields that never belong in the renderable
// payload.
var controlKeys = map[string]bool{
	"shouldCreateArtifact": true,
	"status":               true,
	"success":              true,
	"isError":              true,
	"chartId":              true,
	"artifactId":           true,
	"title":                true,
	"canvasName":           true,
	"toolName":             true,
	"kind":                 true,
	"structuredContent":    true,
	"message":              true,
}

// Normalize extracts a canonical result from one raw tool output.
// Exactly one of the returns is non-nil.
func Normalize(raw map[string]any) (*Result, *Skip) {
	if raw == nil {
		return nil, &Skip{Reason: SkipUnknownShape}
	}

	// Fixed priority order; first matching shape wins.
	for _, dec := range []func(map[string]any) (*Result, *Skip, bool){
		decodeFlagged,
		decodeFlat,
		decodeNested,
	} {
		res, skip, matched := dec(raw)
		if !matched {
			continue
		}
		if skip != nil {
			return nil, skip
		}
		finalize(res, raw)
		return res, nil
	}

	// Progress ticks outside any terminal shape still identify themselves.
	if status, _ := raw["status"].(string); status == "loading" || status == "processing" {
		return nil, &Skip{Reason: SkipInProgress}
	}

	return nil, &Skip{Reason: SkipUnknownShape}
}

// decodeFlagged handles shape (a): {shouldCreateArtifact: true, status: "success", ...}.
func decodeFlagged(raw map[string]any) (*Result, *Skip, bool) {
	flag, ok := raw["shouldCreateArtifact"].(bool)
	if !ok || !flag {
		return nil, nil, false
	}

	status, _ := raw["status"].(string)
	switch status {
	case "success":
	case "loading", "processing":
		return nil, &Skip{Reason: SkipInProgress}, true
	default:
		return nil, &Skip{Reason: SkipErrored}, true
	}

	id, generated := pickID(raw, nil)
	return &Result{
		ArtifactID:  id,
		IDGenerated: generated,
		Payload:     liftPayload(raw),
		Shape:       ShapeFlagged,
	}, nil, true
}

// decodeFlat handles shape (b): {success: true, ...}.
func decodeFlat(raw map[string]any) (*Result, *Skip, bool) {
	success, ok := raw["success"].(bool)
	if !ok {
		return nil, nil, false
	}
	if !success {
		return nil, &Skip{Reason: SkipErrored}, true
	}

	id, generated := pickID(raw, nil)
	return &Result{
		ArtifactID:  id,
		IDGenerated: generated,
		Payload:     liftPayload(raw),
		Shape:       ShapeFlat,
	}, nil, true
}

// decodeNested handles shape (c): {structuredContent: {result: [{success: true,
// isError: false, ...}]}}. The inner object may carry its payload as a JSON
// string under "content", which is parsed defensively.
func decodeNested(raw map[string]any) (*Result, *Skip, bool) {
	sc, ok := raw["structuredContent"].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	results, ok := sc["result"].([]any)
	if !ok || len(results) == 0 {
		return nil, nil, false
	}
	inner, ok := results[0].(map[string]any)
	if !ok {
		return nil, nil, false
	}

	success, _ := inner["success"].(bool)
	isErr, _ := inner["isError"].(bool)
	if !success || isErr {
		return nil, &Skip{Reason: SkipErrored}, true
	}

	payload := liftPayload(inner)
	if content, ok := inner["content"].(string); ok {
		parsed, err := parseContent(content)
		if err != nil {
			return nil, &Skip{Reason: SkipBadJSON, Err: err}, true
		}
		for k, v := range parsed {
			if !controlKeys[k] {
				payload[k] = v
			}
		}
		delete(payload, "content")
	}

	id, generated := pickID(raw, inner)
	res := &Result{
		ArtifactID:  id,
		IDGenerated: generated,
		Payload:     payload,
		Shape:       ShapeNested,
	}
	// Title and canvas name may live on the inner object for this shape.
	if title, ok := inner["title"].(string); ok {
		res.Title = title
	}
	if group, ok := inner["canvasName"].(string); ok {
		res.GroupName = group
	}
	return res, nil, true
}

// parseContent decodes nested-content JSON, attempting a repair pass on
// malformed input before giving up. LLM-assembled JSON frequently arrives
// truncated or with trailing commas; a repaired parse is preferable to
// dropping the artifact.
func parseContent(content string) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return parsed, nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("parse nested content: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, fmt.Errorf("parse repaired nested content: %w", err)
	}
	return parsed, nil
}

// pickID resolves the artifact identity with fixed precedence: explicit
// chart id, explicit artifact id, nested artifact id, else a freshly
// minted UUID. The UUID is minted at most once per normalization so
// duplicate field lookups cannot yield divergent identities; the second
// return is true when the id was minted.
func pickID(raw, inner map[string]any) (string, bool) {
	for _, src := range []map[string]any{raw, inner} {
		if src == nil {
			continue
		}
		if id, ok := src["chartId"].(string); ok && id != "" {
			return id, false
		}
	}
	for _, src := range []map[string]any{raw, inner} {
		if src == nil {
			continue
		}
		if id, ok := src["artifactId"].(string); ok && id != "" {
			return id, false
		}
	}
	return uuid.NewString(), true
}

// liftPayload copies renderable fields out of a wire object, excluding
// protocol control fields.
func liftPayload(src map[string]any) map[string]any {
	payload := make(map[string]any)
	for k, v := range src {
		if !controlKeys[k] {
			payload[k] = v
		}
	}
	return payload
}

// finalize fills the shape-independent fields: title, group name, kind
// inference, gauge clamping, and descriptive metadata.
func finalize(res *Result, raw map[string]any) {
	if res.Title == "" {
		if title, ok := raw["title"].(string); ok {
			res.Title = title
		}
	}
	if res.GroupName == "" {
		if group, ok := raw["canvasName"].(string); ok {
			res.GroupName = group
		}
	}

	res.Kind = inferKind(raw, res.Payload)

	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	res.Metadata["shape"] = string(res.Shape)
	if tool, ok := raw["toolName"].(string); ok && tool != "" {
		res.Metadata["toolName"] = tool
	}
	if ct, ok := res.Payload["chartType"].(string); ok && ct != "" {
		res.Metadata["chartType"] = ct
	}
	if data, ok := res.Payload["data"].([]any); ok {
		res.Metadata["dataPoints"] = len(data)
	}

	clampGauge(res)
}

// inferKind resolves the artifact kind from an explicit field, falling back
// to payload structure.
func inferKind(raw, payload map[string]any) artifact.Kind {
	if k, ok := raw["kind"].(string); ok {
		if kind := artifact.Kind(k); kind.Valid() {
			return kind
		}
	}

	switch {
	case payload["chartType"] != nil:
		return artifact.KindChart
	case payload["columns"] != nil, payload["rows"] != nil:
		return artifact.KindTable
	case payload["widgets"] != nil:
		return artifact.KindDashboard
	case payload["text"] != nil:
		return artifact.KindText
	case payload["imageUrl"] != nil:
		return artifact.KindImage
	default:
		return artifact.KindData
	}
}

// clampGauge clamps an out-of-range numeric value into its declared
// [minValue, maxValue] bounds rather than rejecting the payload, and
// records the clamp in metadata so the UI can surface it.
func clampGauge(res *Result) {
	value, ok := toFloat(res.Payload["value"])
	if !ok {
		return
	}

	clamped := false
	if maxVal, ok := toFloat(res.Payload["maxValue"]); ok && value > maxVal {
		value = maxVal
		clamped = true
	}
	if minVal, ok := toFloat(res.Payload["minValue"]); ok && value < minVal {
		value = minVal
		clamped = true
	}

	if clamped {
		res.Payload["value"] = value
		res.Metadata["clamped"] = true
	}
}

// toFloat converts JSON-decoded numeric representations to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
