package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
)

// fakeADB accepts one connection and plays an adb server: it reads
// hex-framed requests and answers from the script.
func fakeADB(t *testing.T, handle func(service string, c net.Conn) bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					szBuf := make([]byte, 4)
					if _, err := io.ReadFull(c, szBuf); err != nil {
						return
					}
					n, err := strconv.ParseInt(string(szBuf), 16, 32)
					if err != nil {
						return
					}
					buf := make([]byte, n)
					if _, err := io.ReadFull(c, buf); err != nil {
						return
					}
					if !handle(string(buf), c) {
						return
					}
				}
			}(c)
		}
	}()
	return ln.Addr().String()
}

func writeFramed(c net.Conn, payload string) {
	fmt.Fprintf(c, "%04x%s", len(payload), payload)
}

func TestServerVersion(t *testing.T) {
	addr := fakeADB(t, func(service string, c net.Conn) bool {
		if service != "host:version" {
			t.Errorf("unexpected service %q", service)
			io.WriteString(c, "FAIL")
			writeFramed(c, "unknown service")
			return false
		}
		io.WriteString(c, "OKAY")
		writeFramed(c, "0029")
		return false
	})

	v, err := serverVersion(context.Background(), addr)
	if err != nil {
		t.Fatalf("serverVersion: %v", err)
	}
	if v != 0x29 {
		t.Errorf("version = %d, want %d", v, 0x29)
	}
}

func TestRunExec(t *testing.T) {
	addr := fakeADB(t, func(service string, c net.Conn) bool {
		switch {
		case service == "host:transport-any":
			io.WriteString(c, "OKAY")
			return true
		case strings.HasPrefix(service, "exec:"):
			io.WriteString(c, "OKAY")
			io.WriteString(c, "Physical size: 1080x2400\n")
			return false
		default:
			t.Errorf("unexpected service %q", service)
			return false
		}
	})

	out, err := runExec(context.Background(), addr, "", "wm size")
	if err != nil {
		t.Fatalf("runExec: %v", err)
	}
	if !strings.Contains(string(out), "1080x2400") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunExecFail(t *testing.T) {
	addr := fakeADB(t, func(service string, c net.Conn) bool {
		io.WriteString(c, "FAIL")
		writeFramed(c, "device offline")
		return false
	})

	_, err := runExec(context.Background(), addr, "serial123", "ls")
	if err == nil {
		t.Fatal("expected error from FAIL response")
	}
	if !strings.Contains(err.Error(), "device offline") {
		t.Errorf("error should carry server reason: %v", err)
	}
}

func TestFrameEncoding(t *testing.T) {
	// The length prefix must be exactly four lowercase hex digits.
	frame := fmt.Sprintf("%04x%s", len("host:version"), "host:version")
	if got := frame[:4]; got != "000c" {
		t.Errorf("length prefix = %q, want 000c", got)
	}
	if _, err := hex.DecodeString(frame[:4]); err != nil {
		t.Errorf("prefix not hex: %v", err)
	}
}
