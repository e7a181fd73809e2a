// Package render turns reconciled artifacts into presentation-neutral views.
//
// A Renderer knows how to project one artifact kind; the Registry picks the
// renderer by kind with an optional chartType discriminator and falls back to
// a plain JSON card when nothing matches, so an unknown artifact degrades
// visibly instead of disappearing.
package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/log"
	"github.com/vizorai/canvas/internal/security"
)

// urlGuard rejects image URLs pointing at private or internal targets.
var urlGuard = security.NewURL()

// View is a presentation-neutral projection of one artifact.
type View struct {
	ArtifactID string         `json:"artifactId"`
	Component  string         `json:"component"`
	Title      string         `json:"title,omitempty"`
	Props      map[string]any `json:"props"`
}

// Renderer projects one artifact into a View.
type Renderer interface {
	Render(a *artifact.Artifact) (*View, error)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(a *artifact.Artifact) (*View, error)

// Render implements Renderer.
func (f RenderFunc) Render(a *artifact.Artifact) (*View, error) { return f(a) }

// Registry maps artifact kinds, optionally narrowed by the chartType
// metadata discriminator, to renderers. Register and Render are safe for
// concurrent use, so hosts may install custom renderers after serving
// has started.
type Registry struct {
	mu       sync.RWMutex
	byKind   map[artifact.Kind]Renderer
	byChart  map[string]Renderer
	fallback Renderer
	logger   *slog.Logger
}

// NewRegistry builds a registry pre-populated with the built-in renderers.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Registry{
		byKind:   make(map[artifact.Kind]Renderer),
		byChart:  make(map[string]Renderer),
		fallback: RenderFunc(renderCard),
		logger:   logger,
	}
	r.Register(artifact.KindText, RenderFunc(renderText))
	r.Register(artifact.KindChart, RenderFunc(renderChart))
	r.Register(artifact.KindTable, RenderFunc(renderTable))
	r.Register(artifact.KindImage, RenderFunc(renderImage))
	r.Register(artifact.KindDashboard, RenderFunc(renderCard))
	r.Register(artifact.KindData, RenderFunc(renderCard))
	return r
}

// Register installs the default renderer for a kind.
func (r *Registry) Register(kind artifact.Kind, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = renderer
}

// RegisterChart installs a renderer for a specific chartType discriminator,
// taking precedence over the kind default for chart artifacts.
func (r *Registry) RegisterChart(chartType string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChart[strings.ToLower(chartType)] = renderer
}

// Render resolves the renderer for the artifact and projects it. Resolution
// order: chartType discriminator, kind default, fallback card.
func (r *Registry) Render(a *artifact.Artifact) (*View, error) {
	if a == nil {
		return nil, fmt.Errorf("render: nil artifact")
	}
	if renderer := r.resolve(a); renderer != nil {
		return renderer.Render(a)
	}
	r.logger.Warn("no renderer registered, using fallback card",
		"artifact_id", a.ID,
		"kind", a.Kind,
		"chart_type", chartType(a))
	return r.fallback.Render(a)
}

func (r *Registry) resolve(a *artifact.Artifact) Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ct := chartType(a); ct != "" {
		if renderer, ok := r.byChart[strings.ToLower(ct)]; ok {
			return renderer
		}
	}
	if renderer, ok := r.byKind[a.Kind]; ok {
		return renderer
	}
	return nil
}

func chartType(a *artifact.Artifact) string {
	if s, ok := a.Metadata["chartType"].(string); ok {
		return s
	}
	return ""
}

func renderText(a *artifact.Artifact) (*View, error) {
	text, _ := a.Payload["text"].(string)
	return &View{
		ArtifactID: a.ID,
		Component:  "text",
		Title:      a.Title,
		Props:      map[string]any{"text": text},
	}, nil
}

func renderChart(a *artifact.Artifact) (*View, error) {
	props := map[string]any{
		"chartType": chartType(a),
		"data":      a.Payload["data"],
	}
	if cfg, ok := a.Payload["config"]; ok {
		props["config"] = cfg
	}
	return &View{
		ArtifactID: a.ID,
		Component:  "chart",
		Title:      a.Title,
		Props:      props,
	}, nil
}

func renderTable(a *artifact.Artifact) (*View, error) {
	return &View{
		ArtifactID: a.ID,
		Component:  "table",
		Title:      a.Title,
		Props: map[string]any{
			"columns": a.Payload["columns"],
			"rows":    a.Payload["rows"],
		},
	}, nil
}

func renderImage(a *artifact.Artifact) (*View, error) {
	url, _ := a.Payload["imageUrl"].(string)
	if url == "" {
		return nil, fmt.Errorf("render image %s: missing imageUrl", a.ID)
	}
	if err := urlGuard.Validate(url); err != nil {
		return nil, fmt.Errorf("render image %s: %w", a.ID, err)
	}
	return &View{
		ArtifactID: a.ID,
		Component:  "image",
		Title:      a.Title,
		Props:      map[string]any{"imageUrl": url},
	}, nil
}

// renderCard is the universal fallback: the raw payload as a JSON card.
func renderCard(a *artifact.Artifact) (*View, error) {
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("render card %s: %w", a.ID, err)
	}
	return &View{
		ArtifactID: a.ID,
		Component:  "card",
		Title:      a.Title,
		Props:      map[string]any{"json": string(raw)},
	}, nil
}
