package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// adbConn speaks the adb server host protocol: every request is a
// 4-digit lowercase hex length prefix followed by the payload, and the
// server answers with OKAY or FAIL plus a hex-framed error message.
type adbConn struct {
	nc net.Conn
}

func dialADB(ctx context.Context, addr string) (*adbConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial adb server %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	} else {
		_ = nc.SetDeadline(time.Now().Add(2 * time.Minute))
	}
	return &adbConn{nc: nc}, nil
}

func (c *adbConn) Close() error { return c.nc.Close() }

// request sends one hex-framed service request and waits for OKAY.
func (c *adbConn) request(service string) error {
	frame := fmt.Sprintf("%04x%s", len(service), service)
	if _, err := io.WriteString(c.nc, frame); err != nil {
		return fmt.Errorf("write adb request: %w", err)
	}
	return c.readStatus(service)
}

func (c *adbConn) readStatus(service string) error {
	status := make([]byte, 4)
	if _, err := io.ReadFull(c.nc, status); err != nil {
		return fmt.Errorf("read adb status: %w", err)
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		msg, err := c.readHexPayload()
		if err != nil {
			return fmt.Errorf("adb %s failed (unreadable reason): %w", service, err)
		}
		return fmt.Errorf("adb %s failed: %s", service, msg)
	default:
		return fmt.Errorf("adb %s: unexpected status %q", service, status)
	}
}

// readHexPayload reads one length-prefixed response body.
func (c *adbConn) readHexPayload() ([]byte, error) {
	szBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.nc, szBuf); err != nil {
		return nil, fmt.Errorf("read payload length: %w", err)
	}
	if _, err := hex.DecodeString(string(szBuf)); err != nil {
		return nil, fmt.Errorf("malformed payload length %q", szBuf)
	}
	n, err := strconv.ParseInt(string(szBuf), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("parse payload length %q: %w", szBuf, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

// transport binds the connection to a device. With an empty serial the
// server picks the single connected device.
func (c *adbConn) transport(serial string) error {
	if serial == "" {
		return c.request("host:transport-any")
	}
	return c.request("host:transport:" + serial)
}

// runExec opens an exec: service on the transport and returns the raw
// command output. exec: gives binary-clean output, unlike shell:.
func runExec(ctx context.Context, addr, serial, cmd string) ([]byte, error) {
	c, err := dialADB(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.transport(serial); err != nil {
		return nil, err
	}
	if err := c.request("exec:" + cmd); err != nil {
		return nil, err
	}
	out, err := io.ReadAll(c.nc)
	if err != nil {
		return nil, fmt.Errorf("read exec output: %w", err)
	}
	return out, nil
}

// serverVersion asks the adb server for its protocol version, mostly as
// a cheap liveness probe at connect time.
func serverVersion(ctx context.Context, addr string) (int, error) {
	c, err := dialADB(ctx, addr)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	if err := c.request("host:version"); err != nil {
		return 0, err
	}
	payload, err := c.readHexPayload()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(string(payload), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse server version %q: %w", payload, err)
	}
	return int(v), nil
}
