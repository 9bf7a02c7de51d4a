// Package probe implements the collaborator interfaces over a debug
// probe daemon. The daemon owns the physical probe (pin strapping,
// target reset, JTAG, UART) and exposes it through a JSON line
// protocol on a TCP or unix socket; this client maps the orchestration
// contracts onto that protocol.
//
// One request is in flight at a time: the underlying hardware channel
// is half-duplex and all orchestration is synchronous.
package probe

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/glaserf/opentitan/interfaces"
)

type request struct {
	Op     string `json:"op"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// codeTimeout marks daemon-side timeouts so they can be mapped onto
// interfaces.ErrTimeout.
const codeTimeout = "timeout"

// Client is a connection to the probe daemon. It implements
// interfaces.Transport and interfaces.LcTransitioner.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
	log  *slog.Logger

	mu sync.Mutex
}

// Dial connects to the probe daemon. The address is either
// "unix://<path>" or a TCP "host:port".
func Dial(addr string, log *slog.Logger) (*Client, error) {
	var conn net.Conn
	var err error
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		conn, err = net.Dial("unix", path)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to probe daemon at %s: %w", addr, err)
	}
	return NewClient(conn, log), nil
}

// NewClient wraps an established daemon connection.
func NewClient(conn net.Conn, log *slog.Logger) *Client {
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
		log:  log,
	}
}

// Close releases the daemon connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs one request/response exchange.
func (c *Client) call(op string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Debug("Probe request", slog.String("op", op))
	if err := c.enc.Encode(request{Op: op, Params: params}); err != nil {
		return fmt.Errorf("%s: failed to send probe request: %w", op, err)
	}

	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("%s: failed to read probe response: %w", op, err)
	}
	if !resp.OK {
		if resp.Code == codeTimeout {
			return fmt.Errorf("%s: %w", op, interfaces.ErrTimeout)
		}
		return fmt.Errorf("%s: probe error: %s", op, resp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: failed to decode probe result: %w", op, err)
		}
	}
	return nil
}

// PinStrapping returns the handle for a named strap configuration.
func (c *Client) PinStrapping(name string) (interfaces.PinStrapping, error) {
	return &strap{client: c, name: name}, nil
}

type strapParams struct {
	Name string `json:"name"`
}

type strap struct {
	client *Client
	name   string
}

func (s *strap) Apply() error {
	return s.client.call("pin_strap_apply", strapParams{Name: s.name}, nil)
}

func (s *strap) Remove() error {
	return s.client.call("pin_strap_remove", strapParams{Name: s.name}, nil)
}

// ResetTarget holds the target in reset for the delay and releases it.
func (c *Client) ResetTarget(resetDelay time.Duration) error {
	params := struct {
		DelayMillis int64 `json:"delay_ms"`
	}{resetDelay.Milliseconds()}
	return c.call("reset_target", params, nil)
}

// Jtag opens the daemon's debug connection.
func (c *Client) Jtag() (interfaces.Jtag, error) {
	return &jtagConn{client: c}, nil
}

type jtagConn struct {
	client *Client
}

func (j *jtagConn) Connect(tap interfaces.JtagTap) error {
	params := struct {
		Tap string `json:"tap"`
	}{tap.String()}
	return j.client.call("jtag_connect", params, nil)
}

func (j *jtagConn) Disconnect() error {
	return j.client.call("jtag_disconnect", nil, nil)
}

func (j *jtagConn) Reset(run bool) error {
	params := struct {
		Run bool `json:"run"`
	}{run}
	return j.client.call("jtag_reset", params, nil)
}

func (j *jtagConn) ReadLcCtrlReg(reg interfaces.LcCtrlReg) (uint32, error) {
	params := struct {
		Reg int `json:"reg"`
	}{int(reg)}
	var result struct {
		Value uint32 `json:"value"`
	}
	if err := j.client.call("lc_ctrl_read", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// Trigger implements interfaces.LcTransitioner via the daemon, which
// performs the claim/token/target register sequence.
func (c *Client) Trigger(jtag interfaces.Jtag, target interfaces.LcState, token *interfaces.Token,
	useExternalClk bool, resetDelay time.Duration, reconnectTap *interfaces.JtagTap) error {
	params := struct {
		Target         uint8    `json:"target"`
		Token          []uint32 `json:"token,omitempty"`
		UseExternalClk bool     `json:"use_external_clk"`
		DelayMillis    int64    `json:"reset_delay_ms"`
		ReconnectTap   *string  `json:"reconnect_tap,omitempty"`
	}{
		Target:         uint8(target),
		UseExternalClk: useExternalClk,
		DelayMillis:    resetDelay.Milliseconds(),
	}
	if token != nil {
		words := token.Words()
		params.Token = words[:]
	}
	if reconnectTap != nil {
		name := reconnectTap.String()
		params.ReconnectTap = &name
	}
	return c.call("lc_transition", params, nil)
}

// Uart returns the named console stream.
func (c *Client) Uart(name string) (interfaces.Console, error) {
	return &console{client: c, name: name}, nil
}

type console struct {
	client *Client
	name   string
}

type consoleParams struct {
	Uart string `json:"uart"`
}

func (u *console) ClearRxBuffer() error {
	return u.client.call("console_clear", consoleParams{Uart: u.name}, nil)
}

func (u *console) SetFlowControl(enabled bool) error {
	params := struct {
		Uart    string `json:"uart"`
		Enabled bool   `json:"enabled"`
	}{u.name, enabled}
	return u.client.call("console_set_flow_control", params, nil)
}

func (u *console) WaitForPattern(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	params := struct {
		Uart          string `json:"uart"`
		Pattern       string `json:"pattern"`
		TimeoutMillis int64  `json:"timeout_ms"`
	}{u.name, pattern.String(), timeout.Milliseconds()}
	var result struct {
		Matched string `json:"matched"`
	}
	if err := u.client.call("console_wait_for_pattern", params, &result); err != nil {
		return "", err
	}
	return result.Matched, nil
}

func (u *console) Send(data []byte) error {
	params := struct {
		Uart string `json:"uart"`
		Data string `json:"data"`
	}{u.name, hex.EncodeToString(data)}
	return u.client.call("console_send", params, nil)
}

func (u *console) Receive(buf []byte, timeout time.Duration) error {
	params := struct {
		Uart          string `json:"uart"`
		Length        int    `json:"length"`
		TimeoutMillis int64  `json:"timeout_ms"`
	}{u.name, len(buf), timeout.Milliseconds()}
	var result struct {
		Data string `json:"data"`
	}
	if err := u.client.call("console_receive", params, &result); err != nil {
		return err
	}

	raw, err := hex.DecodeString(result.Data)
	if err != nil {
		return fmt.Errorf("console_receive: invalid hex payload: %w", err)
	}
	if len(raw) != len(buf) {
		return fmt.Errorf("console_receive: got %d bytes, want %d", len(raw), len(buf))
	}
	copy(buf, raw)
	return nil
}

// SramProgram binds an SRAM program image path to the daemon loader.
type SramProgram struct {
	client *Client
	path   string
}

// NewSramProgram creates the loader handle for an SRAM program image.
func NewSramProgram(client *Client, path string) *SramProgram {
	return &SramProgram{client: client, path: path}
}

// LoadAndExecute loads the program over the daemon's debug connection
// and starts it in the given mode.
func (p *SramProgram) LoadAndExecute(_ interfaces.Jtag, mode interfaces.ExecutionMode) (interfaces.ExecutionResult, error) {
	modeName := "jump"
	if mode == interfaces.ExecutionModeHalt {
		modeName = "halt"
	}
	params := struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}{p.path, modeName}
	var result struct {
		Result string `json:"result"`
	}
	if err := p.client.call("load_sram_program", params, &result); err != nil {
		return interfaces.ResultLoadFailed, err
	}

	switch result.Result {
	case "executing":
		return interfaces.ResultExecuting, nil
	case "integrity_check_failed":
		return interfaces.ResultIntegrityCheckFailed, nil
	case "crashed":
		return interfaces.ResultCrashed, nil
	default:
		return interfaces.ResultLoadFailed, nil
	}
}

// Bootstrapper flashes firmware images through the daemon.
type Bootstrapper struct {
	client *Client
	// PrimaryImage is the image flashed by Init.
	PrimaryImage string
}

// NewBootstrapper creates a daemon-backed bootstrapper with the given
// primary image.
func NewBootstrapper(client *Client, primaryImage string) *Bootstrapper {
	return &Bootstrapper{client: client, PrimaryImage: primaryImage}
}

// Init bootstraps the primary image.
func (b *Bootstrapper) Init(_ interfaces.Transport) error {
	return b.Load(nil, b.PrimaryImage)
}

// Load bootstraps the image at the given path.
func (b *Bootstrapper) Load(_ interfaces.Transport, imagePath string) error {
	params := struct {
		Path string `json:"path"`
	}{imagePath}
	return b.client.call("bootstrap", params, nil)
}
