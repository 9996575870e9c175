package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Controller is the surface the workflow uses to drive a phone. It is
// an interface so tests can substitute a scripted device.
type Controller interface {
	Screenshot(ctx context.Context, name string) (string, error)
	Tap(ctx context.Context, x, y int) error
	TapWithConfidence(ctx context.Context, x, y int, confidence float64, size string) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	InputText(ctx context.Context, text string) error
	KeyEvent(ctx context.Context, code int) error
	LaunchApp(ctx context.Context, appID string) error
	ScreenSize() (width, height int)
	Close() error
}

// Device drives a single Android device through the adb server.
type Device struct {
	addr          string
	serial        string
	screenshotDir string
	width         int
	height        int
	log           zerolog.Logger
}

// Connect probes the adb server, binds to the device and reads the
// screen geometry once. Geometry is static for a session.
func Connect(ctx context.Context, addr, serial, screenshotDir string, logger zerolog.Logger) (*Device, error) {
	log := logger.With().Str("comp", "device").Logger()

	ver, err := serverVersion(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("adb server unreachable: %w", err)
	}
	log.Debug().Int("server_version", ver).Str("addr", addr).Msg("adb server reachable")

	d := &Device{addr: addr, serial: serial, screenshotDir: screenshotDir, log: log}

	out, err := d.shell(ctx, "wm size")
	if err != nil {
		return nil, fmt.Errorf("read screen size: %w", err)
	}
	w, h, err := parseScreenSize(string(out))
	if err != nil {
		return nil, err
	}
	d.width, d.height = w, h

	if screenshotDir != "" {
		if err := resetDir(screenshotDir); err != nil {
			return nil, fmt.Errorf("reset screenshot dir: %w", err)
		}
	}

	log.Info().Int("width", w).Int("height", h).Msg("device connected")
	return d, nil
}

func (d *Device) shell(ctx context.Context, cmd string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return runExec(ctx, d.addr, d.serial, cmd)
}

// ScreenSize returns the device resolution in pixels.
func (d *Device) ScreenSize() (int, int) { return d.width, d.height }

// Screenshot captures the screen and writes it under the screenshot
// directory, returning the file path.
func (d *Device) Screenshot(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	png, err := d.shell(ctx, "screencap -p")
	if err != nil {
		return "", fmt.Errorf("screencap: %w", err)
	}
	if len(png) < 8 {
		return "", fmt.Errorf("screencap returned %d bytes", len(png))
	}
	path := filepath.Join(d.screenshotDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	d.log.Debug().Str("path", path).Int("bytes", len(png)).Msg("screenshot captured")
	return path, nil
}

// Tap sends a plain tap at pixel coordinates.
func (d *Device) Tap(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	if err != nil {
		return fmt.Errorf("tap %d,%d: %w", x, y, err)
	}
	return nil
}

// TapWithConfidence compensates for uncertain targets: below 0.7
// confidence it taps twice, offset horizontally around the point by
// 20px for "small" targets and 10px otherwise. Confident locations and
// "large" targets get a single centered tap.
func (d *Device) TapWithConfidence(ctx context.Context, x, y int, confidence float64, size string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if confidence >= 0.7 || size == "large" {
		return d.Tap(ctx, x, y)
	}
	off := 10
	if size == "small" {
		off = 20
	}
	if err := d.Tap(ctx, clamp(x-off, 0, d.width-1), y); err != nil {
		return err
	}
	time.Sleep(300 * time.Millisecond)
	return d.Tap(ctx, clamp(x+off, 0, d.width-1), y)
}

// Swipe performs a drag between two pixel points.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, durationMs))
	if err != nil {
		return fmt.Errorf("swipe: %w", err)
	}
	return nil
}

// InputText types text into the focused field. adb's input text treats
// spaces and shell metacharacters specially, so the text is escaped.
func (d *Device) InputText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.shell(ctx, "input text "+escapeInputText(text))
	if err != nil {
		return fmt.Errorf("input text: %w", err)
	}
	return nil
}

// KeyEvent sends a raw Android keycode (66 = enter, 111 = escape).
func (d *Device) KeyEvent(ctx context.Context, code int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.shell(ctx, "input keyevent "+strconv.Itoa(code))
	if err != nil {
		return fmt.Errorf("keyevent %d: %w", code, err)
	}
	return nil
}

// LaunchApp starts the app's launcher activity via monkey, which works
// without knowing the activity name.
func (d *Device) LaunchApp(ctx context.Context, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", appID)
	out, err := d.shell(ctx, cmd)
	if err != nil {
		return fmt.Errorf("launch %s: %w", appID, err)
	}
	if strings.Contains(string(out), "No activities found") {
		return fmt.Errorf("launch %s: app not installed", appID)
	}
	d.log.Info().Str("app", appID).Msg("app launched")
	return nil
}

func (d *Device) Close() error { return nil }

// parseScreenSize extracts resolution from `wm size` output. An
// Override line, when present, wins over the Physical one.
func parseScreenSize(out string) (int, int, error) {
	var w, h int
	found := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		var label string
		switch {
		case strings.HasPrefix(line, "Override size:"):
			label = "Override size:"
		case strings.HasPrefix(line, "Physical size:"):
			if found {
				continue
			}
			label = "Physical size:"
		default:
			continue
		}
		dims := strings.TrimSpace(strings.TrimPrefix(line, label))
		parts := strings.SplitN(dims, "x", 2)
		if len(parts) != 2 {
			continue
		}
		pw, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		ph, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || pw <= 0 || ph <= 0 {
			continue
		}
		w, h = pw, ph
		found = true
		if label == "Override size:" {
			break
		}
	}
	if !found {
		return 0, 0, fmt.Errorf("no screen size in wm output %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

// escapeInputText quotes text for `input text`: spaces become %s and
// shell metacharacters are backslash-escaped.
func escapeInputText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '`', '\\', '$', '&', '|', ';', '(', ')', '<', '>', '#', '*', '?', '~':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
