package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/oracle"
	"github.com/polzovatel/swipe-agent/internal/remarks"
)

// fakeDevice records every interaction and returns scripted results.
type fakeDevice struct {
	w, h int

	shotCount int
	shotErr   error

	taps      []tapRecord
	swipes    int
	swipeRecs [][5]int
	typed     []string
	keys      []int
	apps      []string
	tapErr    error
	typeErr   error
}

type tapRecord struct {
	x, y       int
	confidence float64
	size       string
}

func newFakeDevice() *fakeDevice { return &fakeDevice{w: 1000, h: 2000} }

func (d *fakeDevice) Screenshot(_ context.Context, name string) (string, error) {
	if d.shotErr != nil {
		return "", d.shotErr
	}
	d.shotCount++
	return fmt.Sprintf("fake/%03d_%s", d.shotCount, name), nil
}

func (d *fakeDevice) Tap(_ context.Context, x, y int) error {
	if d.tapErr != nil {
		return d.tapErr
	}
	d.taps = append(d.taps, tapRecord{x: x, y: y, confidence: 1.0})
	return nil
}

func (d *fakeDevice) TapWithConfidence(_ context.Context, x, y int, confidence float64, size string) error {
	if d.tapErr != nil {
		return d.tapErr
	}
	d.taps = append(d.taps, tapRecord{x: x, y: y, confidence: confidence, size: size})
	return nil
}

func (d *fakeDevice) Swipe(_ context.Context, x1, y1, x2, y2, durationMs int) error {
	d.swipes++
	d.swipeRecs = append(d.swipeRecs, [5]int{x1, y1, x2, y2, durationMs})
	return nil
}

func (d *fakeDevice) InputText(_ context.Context, text string) error {
	if d.typeErr != nil {
		return d.typeErr
	}
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDevice) KeyEvent(_ context.Context, code int) error {
	d.keys = append(d.keys, code)
	return nil
}

func (d *fakeDevice) LaunchApp(_ context.Context, appID string) error {
	d.apps = append(d.apps, appID)
	return nil
}

func (d *fakeDevice) ScreenSize() (int, int) { return d.w, d.h }
func (d *fakeDevice) Close() error           { return nil }

// fakeOracle delegates to function fields; unset fields fail loudly.
type fakeOracle struct {
	classify func(path string) (oracle.Surface, error)
	find     func(path, label string) (oracle.Target, error)
	extract  func(paths []string) (string, error)
	assess   func(text string) (oracle.Assessment, error)
	suggest  func(text, style string) (string, error)
	advise   func(path, situation string) (oracle.Advice, error)
	scroll   func(path string) (oracle.ScrollHint, error)
}

var errNotScripted = errors.New("not scripted")

func (f *fakeOracle) ClassifySurface(_ context.Context, path string) (oracle.Surface, error) {
	if f.classify == nil {
		return oracle.Surface{}, errNotScripted
	}
	return f.classify(path)
}

func (f *fakeOracle) FindTarget(_ context.Context, path, label string) (oracle.Target, error) {
	if f.find == nil {
		return oracle.Target{}, errNotScripted
	}
	return f.find(path, label)
}

func (f *fakeOracle) ExtractText(_ context.Context, paths []string) (string, error) {
	if f.extract == nil {
		return "", errNotScripted
	}
	return f.extract(paths)
}

func (f *fakeOracle) AssessProfile(_ context.Context, text string) (oracle.Assessment, error) {
	if f.assess == nil {
		return oracle.Assessment{}, errNotScripted
	}
	return f.assess(text)
}

func (f *fakeOracle) SuggestRemark(_ context.Context, text, style string) (string, error) {
	if f.suggest == nil {
		return "", errNotScripted
	}
	return f.suggest(text, style)
}

func (f *fakeOracle) AdviseScroll(_ context.Context, path string) (oracle.ScrollHint, error) {
	if f.scroll == nil {
		return oracle.ScrollHint{}, errNotScripted
	}
	return f.scroll(path)
}

func (f *fakeOracle) AdviseNext(_ context.Context, path, situation string) (oracle.Advice, error) {
	if f.advise == nil {
		return oracle.Advice{}, errNotScripted
	}
	return f.advise(path, situation)
}

// fakeStore is an in-memory remarkStore.
type fakeStore struct {
	nextID   int
	recorded []Remark
	sent     []string
	stats    []remarks.StyleStat
}

func (s *fakeStore) Record(_ context.Context, profileName, style, text string) (string, error) {
	s.nextID++
	id := fmt.Sprintf("remark-%d", s.nextID)
	s.recorded = append(s.recorded, Remark{ID: id, Style: style, Text: text})
	return id, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id string) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) StatsByStyle(_ context.Context) ([]remarks.StyleStat, error) {
	return s.stats, nil
}

func testWorkflow() config.WorkflowConfig {
	w := config.DefaultConfig().Workflow
	w.SettlePause = "1ms"
	w.ActionPause = "1ms"
	w.RecoveryPause = "1ms"
	return w
}
