package normalize_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/normalize"
)

func TestNormalize_FlaggedShape(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"shouldCreateArtifact": true,
		"status":               "success",
		"chartId":              "c1",
		"title":                "Q1 Sales",
		"chartType":            "bar",
		"data":                 []any{map[string]any{"x": "Jan", "y": 10.0}},
	})

	require.Nil(t, skip)
	require.NotNil(t, res)
	assert.Equal(t, "c1", res.ArtifactID)
	assert.Equal(t, artifact.KindChart, res.Kind)
	assert.Equal(t, "Q1 Sales", res.Title)
	assert.Equal(t, "bar", res.Payload["chartType"])
	assert.Equal(t, normalize.ShapeFlagged, res.Shape)
	assert.Equal(t, 1, res.Metadata["dataPoints"])
}

func TestNormalize_FlatShape(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"success":   true,
		"chartId":   "c1",
		"title":     "Q1 Sales",
		"chartType": "bar",
	})

	require.Nil(t, skip)
	assert.Equal(t, "c1", res.ArtifactID)
	assert.Equal(t, normalize.ShapeFlat, res.Shape)
}

func TestNormalize_NestedShape(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"structuredContent": map[string]any{
			"result": []any{
				map[string]any{
					"success":   true,
					"isError":   false,
					"chartId":   "c1",
					"title":     "Q1 Sales",
					"chartType": "bar",
				},
			},
		},
	})

	require.Nil(t, skip)
	assert.Equal(t, "c1", res.ArtifactID)
	assert.Equal(t, "Q1 Sales", res.Title)
	assert.Equal(t, normalize.ShapeNested, res.Shape)
}

// The three historical wire shapes describing logically identical data must
// normalize to the same (artifactId, kind, title, payload core) tuple.
func TestNormalize_RoundTripAcrossShapes(t *testing.T) {
	t.Parallel()

	shapes := map[string]map[string]any{
		"flagged": {
			"shouldCreateArtifact": true,
			"status":               "success",
			"chartId":              "c1",
			"title":                "Q1 Sales",
			"chartType":            "bar",
		},
		"flat": {
			"success":   true,
			"chartId":   "c1",
			"title":     "Q1 Sales",
			"chartType": "bar",
		},
		"nested": {
			"structuredContent": map[string]any{
				"result": []any{
					map[string]any{
						"success":   true,
						"isError":   false,
						"chartId":   "c1",
						"title":     "Q1 Sales",
						"chartType": "bar",
					},
				},
			},
		},
	}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			res, skip := normalize.Normalize(raw)
			require.Nil(t, skip)
			assert.Equal(t, "c1", res.ArtifactID)
			assert.Equal(t, artifact.KindChart, res.Kind)
			assert.Equal(t, "Q1 Sales", res.Title)
			assert.Equal(t, "bar", res.Payload["chartType"])
		})
	}
}

func TestNormalize_PriorityOrderFixed(t *testing.T) {
	t.Parallel()

	// A payload matching both (a) and (b) decodes as (a).
	res, skip := normalize.Normalize(map[string]any{
		"shouldCreateArtifact": true,
		"status":               "success",
		"success":              true,
		"chartId":              "c1",
	})

	require.Nil(t, skip)
	assert.Equal(t, normalize.ShapeFlagged, res.Shape)
}

func TestNormalize_IDPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{
			name: "chartId wins over artifactId",
			raw:  map[string]any{"success": true, "chartId": "c1", "artifactId": "a1"},
			want: "c1",
		},
		{
			name: "artifactId as fallback",
			raw:  map[string]any{"success": true, "artifactId": "a1"},
			want: "a1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, skip := normalize.Normalize(tt.raw)
			require.Nil(t, skip)
			assert.Equal(t, tt.want, res.ArtifactID)
		})
	}
}

func TestNormalize_MintsIDOnce(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{"success": true, "chartType": "bar"})
	require.Nil(t, skip)
	require.NotEmpty(t, res.ArtifactID)

	// Two normalizations of an id-less payload mint distinct identities;
	// within one call the id is stable (single mint, not per-lookup).
	res2, skip2 := normalize.Normalize(map[string]any{"success": true, "chartType": "bar"})
	require.Nil(t, skip2)
	assert.NotEqual(t, res.ArtifactID, res2.ArtifactID)
}

func TestNormalize_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    map[string]any
		reason normalize.SkipReason
	}{
		{
			name:   "loading tick",
			raw:    map[string]any{"status": "loading", "toolCallId": "tc1"},
			reason: normalize.SkipInProgress,
		},
		{
			name: "flagged still processing",
			raw: map[string]any{
				"shouldCreateArtifact": true,
				"status":               "processing",
			},
			reason: normalize.SkipInProgress,
		},
		{
			name: "flagged errored",
			raw: map[string]any{
				"shouldCreateArtifact": true,
				"status":               "error",
			},
			reason: normalize.SkipErrored,
		},
		{
			name:   "flat failure",
			raw:    map[string]any{"success": false, "message": "boom"},
			reason: normalize.SkipErrored,
		},
		{
			name: "nested error flag",
			raw: map[string]any{
				"structuredContent": map[string]any{
					"result": []any{map[string]any{"success": true, "isError": true}},
				},
			},
			reason: normalize.SkipErrored,
		},
		{
			name:   "unknown shape",
			raw:    map[string]any{"something": "else"},
			reason: normalize.SkipUnknownShape,
		},
		{
			name:   "nil input",
			raw:    nil,
			reason: normalize.SkipUnknownShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, skip := normalize.Normalize(tt.raw)
			assert.Nil(t, res)
			require.NotNil(t, skip)
			assert.Equal(t, tt.reason, skip.Reason)
		})
	}
}

func TestNormalize_NestedContentJSON(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"structuredContent": map[string]any{
			"result": []any{
				map[string]any{
					"success": true,
					"isError": false,
					"chartId": "c1",
					"content": `{"chartType":"line","data":[{"x":1,"y":2}]}`,
				},
			},
		},
	})

	require.Nil(t, skip)
	assert.Equal(t, "line", res.Payload["chartType"])
	assert.Equal(t, artifact.KindChart, res.Kind)
}

func TestNormalize_NestedContentJSON_Repaired(t *testing.T) {
	t.Parallel()

	// Trailing comma: invalid JSON that the repair pass can recover.
	res, skip := normalize.Normalize(map[string]any{
		"structuredContent": map[string]any{
			"result": []any{
				map[string]any{
					"success": true,
					"isError": false,
					"chartId": "c1",
					"content": `{"chartType":"line",}`,
				},
			},
		},
	})

	require.Nil(t, skip)
	assert.Equal(t, "line", res.Payload["chartType"])
}

func TestNormalize_NestedContentJSON_Unrecoverable(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"structuredContent": map[string]any{
			"result": []any{
				map[string]any{
					"success": true,
					"isError": false,
					"content": "][ not json at all }{",
				},
			},
		},
	})

	assert.Nil(t, res)
	require.NotNil(t, skip)
	assert.Equal(t, normalize.SkipBadJSON, skip.Reason)
	assert.Error(t, skip.Err)
}

func TestNormalize_GaugeClamping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   map[string]any
		wantValue float64
		clamped   bool
	}{
		{
			name:      "above max",
			payload:   map[string]any{"value": 150.0, "maxValue": 100.0},
			wantValue: 100,
			clamped:   true,
		},
		{
			name:      "below min",
			payload:   map[string]any{"value": -5.0, "minValue": 0.0, "maxValue": 100.0},
			wantValue: 0,
			clamped:   true,
		},
		{
			name:      "in range",
			payload:   map[string]any{"value": 42.0, "minValue": 0.0, "maxValue": 100.0},
			wantValue: 42,
			clamped:   false,
		},
		{
			name:      "integer value above max",
			payload:   map[string]any{"value": 150, "maxValue": 100.0},
			wantValue: 100,
			clamped:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw := map[string]any{"success": true, "chartId": "g1"}
			for k, v := range tt.payload {
				raw[k] = v
			}

			res, skip := normalize.Normalize(raw)
			require.Nil(t, skip)

			got, ok := res.Payload["value"]
			require.True(t, ok)
			if tt.clamped {
				assert.Equal(t, tt.wantValue, got)
				assert.Equal(t, true, res.Metadata["clamped"])
			} else {
				assert.NotContains(t, res.Metadata, "clamped")
			}
		})
	}
}

func TestNormalize_KindInference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  map[string]any
		want artifact.Kind
	}{
		{"explicit kind", map[string]any{"success": true, "kind": "dashboard"}, artifact.KindDashboard},
		{"chart from chartType", map[string]any{"success": true, "chartType": "pie"}, artifact.KindChart},
		{"table from columns", map[string]any{"success": true, "columns": []any{"a"}}, artifact.KindTable},
		{"text", map[string]any{"success": true, "text": "hello"}, artifact.KindText},
		{"image", map[string]any{"success": true, "imageUrl": "https://x/y.png"}, artifact.KindImage},
		{"default data", map[string]any{"success": true, "blob": 1}, artifact.KindData},
		{"invalid explicit kind falls through", map[string]any{"success": true, "kind": "gif", "chartType": "bar"}, artifact.KindChart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, skip := normalize.Normalize(tt.raw)
			require.Nil(t, skip)
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestNormalize_GroupName(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"success":    true,
		"chartId":    "c1",
		"canvasName": "Revenue Dashboard",
	})
	require.Nil(t, skip)
	assert.Equal(t, "Revenue Dashboard", res.GroupName)

	res, skip = normalize.Normalize(map[string]any{"success": true, "chartId": "c2"})
	require.Nil(t, skip)
	assert.Empty(t, res.GroupName, "absent canvas name stays empty for sticky resolution downstream")
}

func TestNormalize_PayloadExcludesControlFields(t *testing.T) {
	t.Parallel()

	res, skip := normalize.Normalize(map[string]any{
		"success":   true,
		"chartId":   "c1",
		"title":     "T",
		"chartType": "bar",
	})
	require.Nil(t, skip)

	for _, k := range []string{"success", "chartId", "title"} {
		assert.NotContains(t, res.Payload, k)
	}
	assert.Contains(t, res.Payload, "chartType")
}

func FuzzNormalize(f *testing.F) {
	f.Add(`{"success":true,"chartId":"c1","chartType":"bar"}`)
	f.Add(`{"shouldCreateArtifact":true,"status":"success"}`)
	f.Add(`{"structuredContent":{"result":[{"success":true,"isError":false,"content":"{"}]}}`)
	f.Add(`{}`)
	f.Add(`{"status":"loading"}`)

	f.Fuzz(func(t *testing.T, data string) {
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			t.Skip()
		}

		// Must never panic, and must return exactly one of (result, skip).
		res, skip := normalize.Normalize(raw)
		if (res == nil) == (skip == nil) {
			t.Fatalf("Normalize returned res=%v skip=%v", res, skip)
		}
		if res != nil && res.ArtifactID == "" {
			t.Fatal("normalized result without identity")
		}
	})
}

func TestSkip_String(t *testing.T) {
	t.Parallel()

	rejected := &normalize.Skip{
		Reason: normalize.SkipValidationFailed,
		Err:    errors.New("chartType is required"),
	}
	assert.Equal(t, "validation_failed: chartType is required", rejected.String())

	bare := &normalize.Skip{Reason: normalize.SkipInProgress}
	assert.Equal(t, "in_progress", bare.String())
}
