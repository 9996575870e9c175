package oracle

import (
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			in:   `{"surface":"profile"}`,
			want: `{"surface":"profile"}`,
		},
		{
			name: "fenced markdown",
			in:   "Here you go:\n```json\n{\"surface\":\"paywall\"}\n```\n",
			want: `{"surface":"paywall"}`,
		},
		{
			name: "braces inside strings",
			in:   `{"description":"a { tricky } one","surface":"unknown"}`,
			want: `{"description":"a { tricky } one","surface":"unknown"}`,
		},
		{
			name: "nested objects",
			in:   `x {"target":{"x_pct":0.5}} y`,
			want: `{"target":{"x_pct":0.5}}`,
		},
		{
			name:    "no json",
			in:      "sorry, I cannot help",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSurface(t *testing.T) {
	text := `{"surface":"comment_composer","description":"text field open",
		"targets":[{"label":"send_button","x_pct":0.75,"y_pct":0.82,"confidence":0.9}]}`
	s, err := parseSurface(text)
	if err != nil {
		t.Fatalf("parseSurface: %v", err)
	}
	if s.Kind != SurfaceComposer {
		t.Errorf("kind = %q", s.Kind)
	}
	if len(s.Targets) != 1 || !s.Targets[0].Found {
		t.Fatalf("targets = %+v", s.Targets)
	}
	if s.Targets[0].XPct != 0.75 || s.Targets[0].YPct != 0.82 {
		t.Errorf("target coords = %v,%v", s.Targets[0].XPct, s.Targets[0].YPct)
	}
}

func TestParseSurfaceDefaultsUnknown(t *testing.T) {
	s, err := parseSurface(`{"description":"something odd"}`)
	if err != nil {
		t.Fatalf("parseSurface: %v", err)
	}
	if s.Kind != SurfaceUnknown {
		t.Errorf("kind = %q, want %q", s.Kind, SurfaceUnknown)
	}
}

func TestParseTargetNormalizesSize(t *testing.T) {
	tgt, err := parseTarget(`{"found":true,"label":"like_button","x_pct":0.9,"y_pct":0.75,"confidence":0.8,"size":" Small "}`)
	if err != nil {
		t.Fatalf("parseTarget: %v", err)
	}
	if tgt.Size != "small" {
		t.Errorf("size = %q, want small", tgt.Size)
	}
}

func TestParseScrollHint(t *testing.T) {
	h, err := parseScrollHint(`{"scroll_needed":true,"x_pct":0.5,"y_pct":0.62}`)
	if err != nil {
		t.Fatalf("parseScrollHint: %v", err)
	}
	if !h.More || h.XPct != 0.5 || h.YPct != 0.62 {
		t.Errorf("hint = %+v", h)
	}
	// Out-of-range anchors snap back to screen center.
	h, err = parseScrollHint(`{"scroll_needed":false,"x_pct":1.4,"y_pct":-0.2}`)
	if err != nil {
		t.Fatalf("parseScrollHint: %v", err)
	}
	if h.More || h.XPct != 0.5 || h.YPct != 0.5 {
		t.Errorf("hint = %+v", h)
	}
}

func TestParseTargetNotFound(t *testing.T) {
	tgt, err := parseTarget(`{"found":false}`)
	if err != nil {
		t.Fatalf("parseTarget: %v", err)
	}
	if tgt.Found {
		t.Error("target should not be found")
	}
}

func TestParseAssessment(t *testing.T) {
	text := "```json\n" + `{"name":"Sarah","age":28,"quality":8.5,"conversation_potential":7.0,
		"red_flags":[],"positive_indicators":["hiking","dog person"],
		"interests":["hiking","travel"],"summary":"outdoorsy and specific"}` + "\n```"
	as, err := parseAssessment(text)
	if err != nil {
		t.Fatalf("parseAssessment: %v", err)
	}
	if as.Name != "Sarah" || as.Age != 28 {
		t.Errorf("identity = %q/%d", as.Name, as.Age)
	}
	if as.Quality != 8.5 || as.ConversationPotential != 7.0 {
		t.Errorf("scores = %v/%v", as.Quality, as.ConversationPotential)
	}
	if len(as.PositiveIndicators) != 2 {
		t.Errorf("positives = %v", as.PositiveIndicators)
	}
}

func TestParseAdvice(t *testing.T) {
	adv, err := parseAdvice(`{"action":"TAP","reason":"dismiss dialog",
		"target":{"found":true,"label":"dismiss","x_pct":0.5,"y_pct":0.9,"confidence":0.8}}`)
	if err != nil {
		t.Fatalf("parseAdvice: %v", err)
	}
	if adv.Action != "tap" {
		t.Errorf("action = %q, want lowercased tap", adv.Action)
	}
	if !adv.Target.Found {
		t.Error("target should be found")
	}

	if _, err := parseAdvice(`{"reason":"no action field"}`); err == nil {
		t.Error("expected error for missing action")
	}
	if _, err := parseAdvice("not json at all"); err == nil {
		t.Error("expected error for non-json")
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Errorf("clip under limit = %q", got)
	}
	got := clip(strings.Repeat("x", 50), 10)
	if len(got) != 13 || !strings.HasSuffix(got, "...") {
		t.Errorf("clip over limit = %q", got)
	}
}
