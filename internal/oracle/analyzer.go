package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Surface kinds the screen classifier can report.
const (
	SurfaceProfile  = "profile"
	SurfaceComposer = "comment_composer"
	SurfaceMatch    = "match_dialog"
	SurfacePaywall  = "paywall"
	SurfaceUnknown  = "unknown"
)

// Target is a UI element located on a screenshot, in relative
// percent coordinates so it is resolution-independent.
type Target struct {
	Found      bool    `json:"found"`
	Label      string  `json:"label"`
	XPct       float64 `json:"x_pct"`
	YPct       float64 `json:"y_pct"`
	Confidence float64 `json:"confidence"`
	Size       string  `json:"size"`
}

// Surface is the classification of the current screen.
type Surface struct {
	Kind        string   `json:"surface"`
	Targets     []Target `json:"targets"`
	Description string   `json:"description"`
}

// Assessment is the quality read of a full profile.
type Assessment struct {
	Name                  string   `json:"name"`
	Age                   int      `json:"age"`
	Quality               float64  `json:"quality"`
	ConversationPotential float64  `json:"conversation_potential"`
	RedFlags              []string `json:"red_flags"`
	PositiveIndicators    []string `json:"positive_indicators"`
	Interests             []string `json:"interests"`
	Summary               string   `json:"summary"`
}

// Advice is a suggested next step from the vision model.
type Advice struct {
	Action string `json:"action"`
	Target Target `json:"target"`
	Reason string `json:"reason"`
}

// Analyzer wraps the LLM client with the domain prompts the workflow
// needs: screen classification, text extraction, profile assessment,
// remark generation and step advice.
type Analyzer struct {
	llm Client
	log zerolog.Logger
}

func NewAnalyzer(client Client, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		llm: client,
		log: logger.With().Str("comp", "oracle").Logger(),
	}
}

const surfacePrompt = `Classify this mobile app screenshot.
Respond with a SINGLE JSON object and NOTHING else:
{"surface":"profile|comment_composer|match_dialog|paywall|unknown",
 "description":"one sentence",
 "targets":[{"label":"like_button|send_button|text_field|dismiss","x_pct":0.0,"y_pct":0.0,"confidence":0.0,"size":"small|medium|large"}]}
Coordinates are fractions of screen width/height in [0,1].
size describes the element's on-screen extent.
Only include targets you actually see.`

// ClassifySurface reads a screenshot from disk and asks the model what
// screen we are on and which controls are visible.
func (a *Analyzer) ClassifySurface(ctx context.Context, imagePath string) (Surface, error) {
	img, err := readImage(imagePath)
	if err != nil {
		return Surface{}, err
	}
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      surfacePrompt,
		Images:      []Image{img},
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return Surface{}, fmt.Errorf("classify surface: %w", err)
	}
	s, err := parseSurface(resp.Text)
	if err != nil {
		return Surface{}, fmt.Errorf("%w: raw=%q", err, clip(resp.Text, 200))
	}
	a.log.Debug().Str("surface", s.Kind).Int("targets", len(s.Targets)).Msg("surface classified")
	return s, nil
}

const findTargetPrompt = `On this mobile app screenshot, locate the element: %q.
Respond with a SINGLE JSON object and NOTHING else:
{"found":true,"label":%q,"x_pct":0.0,"y_pct":0.0,"confidence":0.0,"size":"small|medium|large"}
Coordinates are fractions of screen width/height in [0,1].
size describes the element's on-screen extent.
If the element is not visible, respond {"found":false}.`

// FindTarget locates a single named control on a screenshot.
func (a *Analyzer) FindTarget(ctx context.Context, imagePath, label string) (Target, error) {
	img, err := readImage(imagePath)
	if err != nil {
		return Target{}, err
	}
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      fmt.Sprintf(findTargetPrompt, label, label),
		Images:      []Image{img},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return Target{}, fmt.Errorf("find target %q: %w", label, err)
	}
	t, err := parseTarget(resp.Text)
	if err != nil {
		return Target{}, fmt.Errorf("%w: raw=%q", err, clip(resp.Text, 200))
	}
	if t.Label == "" {
		t.Label = label
	}
	return t, nil
}

const extractTextPrompt = `Extract ALL visible text from these dating profile screenshots:
name, age, bio, prompts with answers, interests, job, education, location.
Return plain text only, one item per line. No commentary.`

// ExtractText pulls the visible profile text out of one or more
// screenshots. The result feeds the change detector and assessment.
func (a *Analyzer) ExtractText(ctx context.Context, imagePaths []string) (string, error) {
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("no screenshots to extract from")
	}
	images := make([]Image, 0, len(imagePaths))
	for _, p := range imagePaths {
		img, err := readImage(p)
		if err != nil {
			return "", err
		}
		images = append(images, img)
	}
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      extractTextPrompt,
		Images:      images,
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ScrollHint reports whether more profile content sits below the fold,
// with the center of the scrollable area in percent coordinates.
type ScrollHint struct {
	More bool    `json:"scroll_needed"`
	XPct float64 `json:"x_pct"`
	YPct float64 `json:"y_pct"`
}

const scrollPrompt = `Is there more dating profile content below the visible area of this screenshot?
Respond with a SINGLE JSON object and NOTHING else:
{"scroll_needed":true,"x_pct":0.5,"y_pct":0.5}
x_pct/y_pct is the center of the scrollable content area, as fractions
of screen width/height in [0,1].`

// AdviseScroll asks whether the profile continues below the fold and
// where the scrollable area sits. The gather loop swipes through the
// reported anchor.
func (a *Analyzer) AdviseScroll(ctx context.Context, imagePath string) (ScrollHint, error) {
	img, err := readImage(imagePath)
	if err != nil {
		return ScrollHint{}, err
	}
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      scrollPrompt,
		Images:      []Image{img},
		Temperature: 0,
		MaxTokens:   128,
	})
	if err != nil {
		return ScrollHint{}, fmt.Errorf("advise scroll: %w", err)
	}
	h, err := parseScrollHint(resp.Text)
	if err != nil {
		return ScrollHint{}, fmt.Errorf("%w: raw=%q", err, clip(resp.Text, 200))
	}
	a.log.Debug().Bool("more", h.More).Float64("x_pct", h.XPct).Float64("y_pct", h.YPct).Msg("scroll advice")
	return h, nil
}

const assessPrompt = `Assess this dating profile text for conversation fit.
Respond with a SINGLE JSON object and NOTHING else:
{"name":"...","age":0,"quality":0.0,"conversation_potential":0.0,
 "red_flags":["..."],"positive_indicators":["..."],
 "interests":["..."],"summary":"one sentence"}
quality and conversation_potential are 0-10.
red_flags: only serious concerns (aggression, scam signs, emptiness).
positive_indicators: specific hooks worth mentioning.

PROFILE TEXT:
%s`

// AssessProfile scores extracted profile text. The decision engine, not
// the model, applies the accept/reject thresholds.
func (a *Analyzer) AssessProfile(ctx context.Context, text string) (Assessment, error) {
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      fmt.Sprintf(assessPrompt, text),
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("assess profile: %w", err)
	}
	as, err := parseAssessment(resp.Text)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: raw=%q", err, clip(resp.Text, 200))
	}
	a.log.Debug().
		Float64("quality", as.Quality).
		Float64("potential", as.ConversationPotential).
		Int("red_flags", len(as.RedFlags)).
		Msg("profile assessed")
	return as, nil
}

const remarkPrompt = `Write ONE short opening message for a dating app, style: %s.
Reference something specific from the profile. Under 150 characters.
No emojis, no quotes around the message, no explanation.

PROFILE TEXT:
%s`

// SuggestRemark generates an opener in the given style.
func (a *Analyzer) SuggestRemark(ctx context.Context, profileText, style string) (string, error) {
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      fmt.Sprintf(remarkPrompt, style, profileText),
		Temperature: 0.8,
		MaxTokens:   128,
	})
	if err != nil {
		return "", fmt.Errorf("suggest remark: %w", err)
	}
	msg := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text), `"`))
	if msg == "" {
		return "", fmt.Errorf("empty remark from model")
	}
	return msg, nil
}

const advicePrompt = `You drive a dating app. Current situation: %s
Look at the screenshot and pick the next step.
Respond with a SINGLE JSON object and NOTHING else:
{"action":"tap|swipe|capture|advance|wait","reason":"one sentence",
 "target":{"found":true,"label":"...","x_pct":0.0,"y_pct":0.0,"confidence":0.0}}
Include target only for tap.`

// AdviseNext asks the model for the next step given a screenshot and a
// one-line summary of where the workflow thinks it is.
func (a *Analyzer) AdviseNext(ctx context.Context, imagePath, situation string) (Advice, error) {
	img, err := readImage(imagePath)
	if err != nil {
		return Advice{}, err
	}
	resp, err := a.llm.Generate(ctx, Request{
		Prompt:      fmt.Sprintf(advicePrompt, situation),
		Images:      []Image{img},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return Advice{}, fmt.Errorf("advise next: %w", err)
	}
	adv, err := parseAdvice(resp.Text)
	if err != nil {
		return Advice{}, fmt.Errorf("%w: raw=%q", err, clip(resp.Text, 200))
	}
	return adv, nil
}

func parseSurface(text string) (Surface, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Surface{}, err
	}
	var s Surface
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Surface{}, fmt.Errorf("surface json parse: %w", err)
	}
	if s.Kind == "" {
		s.Kind = SurfaceUnknown
	}
	for i := range s.Targets {
		s.Targets[i].Found = true
		s.Targets[i].Size = strings.TrimSpace(strings.ToLower(s.Targets[i].Size))
	}
	return s, nil
}

func parseTarget(text string) (Target, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Target{}, err
	}
	var t Target
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Target{}, fmt.Errorf("target json parse: %w", err)
	}
	t.Size = strings.TrimSpace(strings.ToLower(t.Size))
	return t, nil
}

// parseScrollHint snaps out-of-range anchors back to screen center so
// a sloppy model answer still yields a usable gesture.
func parseScrollHint(text string) (ScrollHint, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return ScrollHint{}, err
	}
	var h ScrollHint
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return ScrollHint{}, fmt.Errorf("scroll hint json parse: %w", err)
	}
	if h.XPct <= 0 || h.XPct >= 1 {
		h.XPct = 0.5
	}
	if h.YPct <= 0 || h.YPct >= 1 {
		h.YPct = 0.5
	}
	return h, nil
}

func parseAssessment(text string) (Assessment, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Assessment{}, err
	}
	var as Assessment
	if err := json.Unmarshal([]byte(raw), &as); err != nil {
		return Assessment{}, fmt.Errorf("assessment json parse: %w", err)
	}
	return as, nil
}

func parseAdvice(text string) (Advice, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Advice{}, err
	}
	var adv Advice
	if err := json.Unmarshal([]byte(raw), &adv); err != nil {
		return Advice{}, fmt.Errorf("advice json parse: %w", err)
	}
	adv.Action = strings.TrimSpace(strings.ToLower(adv.Action))
	if adv.Action == "" {
		return Advice{}, fmt.Errorf("advice missing action")
	}
	return adv, nil
}

// extractJSON finds the first balanced top-level JSON object, skipping
// brace characters inside string literals.
func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}

func readImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read screenshot %s: %w", path, err)
	}
	return Image{MIME: "image/png", Data: data}, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
