package device

import (
	"context"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseScreenSize(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		w, h    int
		wantErr bool
	}{
		{
			name: "physical only",
			out:  "Physical size: 1080x2400\n",
			w:    1080, h: 2400,
		},
		{
			name: "override wins",
			out:  "Physical size: 1080x2400\nOverride size: 720x1600\n",
			w:    720, h: 1600,
		},
		{
			name: "override first",
			out:  "Override size: 720x1600\nPhysical size: 1080x2400\n",
			w:    720, h: 1600,
		},
		{
			name:    "garbage",
			out:     "no size here",
			wantErr: true,
		},
		{
			name:    "zero dims rejected",
			out:     "Physical size: 0x2400",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := parseScreenSize(tt.out)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %dx%d", w, h)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.w, tt.h)
			}
		})
	}
}

func TestEscapeInputText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"hello world", "hello%sworld"},
		{"it's fun", "it\\'s%sfun"},
		{"a&b;c", "a\\&b\\;c"},
		{"100% match", "100%%smatch"},
	}
	for _, tt := range tests {
		if got := escapeInputText(tt.in); got != tt.want {
			t.Errorf("escapeInputText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTapWithConfidenceOffsets(t *testing.T) {
	var mu sync.Mutex
	var cmds []string
	addr := fakeADB(t, func(service string, c net.Conn) bool {
		switch {
		case service == "host:transport-any":
			io.WriteString(c, "OKAY")
			return true
		case strings.HasPrefix(service, "exec:"):
			mu.Lock()
			cmds = append(cmds, strings.TrimPrefix(service, "exec:"))
			mu.Unlock()
			io.WriteString(c, "OKAY")
			return false
		default:
			t.Errorf("unexpected service %q", service)
			return false
		}
	})
	d := &Device{addr: addr, width: 1000, height: 2000, log: zerolog.Nop()}
	ctx := context.Background()

	if err := d.TapWithConfidence(ctx, 500, 800, 0.5, "small"); err != nil {
		t.Fatalf("small tap: %v", err)
	}
	if err := d.TapWithConfidence(ctx, 500, 800, 0.5, "medium"); err != nil {
		t.Fatalf("medium tap: %v", err)
	}
	if err := d.TapWithConfidence(ctx, 500, 800, 0.5, "large"); err != nil {
		t.Fatalf("large tap: %v", err)
	}
	if err := d.TapWithConfidence(ctx, 500, 800, 0.9, "small"); err != nil {
		t.Fatalf("confident tap: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"input tap 480 800", "input tap 520 800", // small: ±20
		"input tap 490 800", "input tap 510 800", // medium: ±10
		"input tap 500 800", // large: single centered
		"input tap 500 800", // confident: single tap
	}
	if !reflect.DeepEqual(cmds, want) {
		t.Errorf("commands = %v, want %v", cmds, want)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-5, 0, 100); got != 0 {
		t.Errorf("clamp(-5) = %d", got)
	}
	if got := clamp(250, 0, 100); got != 100 {
		t.Errorf("clamp(250) = %d", got)
	}
	if got := clamp(42, 0, 100); got != 42 {
		t.Errorf("clamp(42) = %d", got)
	}
}
