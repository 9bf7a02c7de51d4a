package probe

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/glaserf/opentitan/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon answers probe requests over an in-memory connection.
type fakeDaemon struct {
	t    *testing.T
	conn net.Conn
	// reply maps an op to its canned response.
	reply map[string]response
	// ops records the requests in arrival order.
	ops  []request
	done chan struct{}
}

func startDaemon(t *testing.T, reply map[string]response) (*fakeDaemon, *Client) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	daemon := &fakeDaemon{
		t:     t,
		conn:  serverConn,
		reply: reply,
		done:  make(chan struct{}),
	}
	go daemon.serve()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
		<-daemon.done
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return daemon, NewClient(clientConn, log)
}

func (d *fakeDaemon) serve() {
	defer close(d.done)
	dec := json.NewDecoder(d.conn)
	enc := json.NewEncoder(d.conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		d.ops = append(d.ops, req)

		resp, ok := d.reply[req.Op]
		if !ok {
			resp = response{OK: true}
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func TestPinStrapping(t *testing.T) {
	daemon, client := startDaemon(t, nil)

	strap, err := client.PinStrapping(interfaces.StrapLcTap)
	require.NoError(t, err)
	require.NoError(t, strap.Apply())
	require.NoError(t, strap.Remove())

	require.Len(t, daemon.ops, 2)
	assert.Equal(t, "pin_strap_apply", daemon.ops[0].Op)
	assert.Equal(t, "pin_strap_remove", daemon.ops[1].Op)
}

func TestReadLcCtrlReg(t *testing.T) {
	want := interfaces.LcStateTestLocked0.RedundantEncoding()
	_, client := startDaemon(t, map[string]response{
		"lc_ctrl_read": {OK: true, Result: json.RawMessage(
			`{"value":` + jsonUint(want) + `}`)},
	})

	jtag, err := client.Jtag()
	require.NoError(t, err)
	value, err := jtag.ReadLcCtrlReg(interfaces.LcCtrlRegState)
	require.NoError(t, err)
	assert.Equal(t, want, value)
}

func jsonUint(v uint32) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestTimeoutCodeMapsToErrTimeout(t *testing.T) {
	_, client := startDaemon(t, map[string]response{
		"console_wait_for_pattern": {OK: false, Error: "pattern not observed", Code: "timeout"},
	})

	console, err := client.Uart("console")
	require.NoError(t, err)
	_, err = console.WaitForPattern(regexp.MustCompile("PASS"), time.Second)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
}

func TestDaemonErrorIsSurfaced(t *testing.T) {
	_, client := startDaemon(t, map[string]response{
		"jtag_connect": {OK: false, Error: "TAP not responding"},
	})

	jtag, err := client.Jtag()
	require.NoError(t, err)
	assert.ErrorContains(t, jtag.Connect(interfaces.LcTap), "TAP not responding")
}

func TestConsoleSendReceiveHexRoundTrip(t *testing.T) {
	daemon, client := startDaemon(t, map[string]response{
		"console_receive": {OK: true, Result: json.RawMessage(`{"data":"cafe01"}`)},
	})

	console, err := client.Uart("console")
	require.NoError(t, err)
	require.NoError(t, console.Send([]byte{0xde, 0xad}))

	buf := make([]byte, 3)
	require.NoError(t, console.Receive(buf, time.Second))
	assert.Equal(t, []byte{0xca, 0xfe, 0x01}, buf)

	sendParams, ok := daemon.ops[0].Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dead", sendParams["data"])
}

func TestReceiveLengthMismatchIsError(t *testing.T) {
	_, client := startDaemon(t, map[string]response{
		"console_receive": {OK: true, Result: json.RawMessage(`{"data":"cafe"}`)},
	})

	console, err := client.Uart("console")
	require.NoError(t, err)
	buf := make([]byte, 3)
	assert.ErrorContains(t, console.Receive(buf, time.Second), "want 3")
}

func TestSramProgramResultMapping(t *testing.T) {
	tests := []struct {
		daemonResult string
		want         interfaces.ExecutionResult
	}{
		{"executing", interfaces.ResultExecuting},
		{"integrity_check_failed", interfaces.ResultIntegrityCheckFailed},
		{"crashed", interfaces.ResultCrashed},
		{"something_else", interfaces.ResultLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.daemonResult, func(t *testing.T) {
			_, client := startDaemon(t, map[string]response{
				"load_sram_program": {OK: true, Result: json.RawMessage(
					`{"result":"` + tt.daemonResult + `"}`)},
			})

			program := NewSramProgram(client, "sram_ft_individualize.elf")
			result, err := program.LoadAndExecute(nil, interfaces.ExecutionModeJump)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestTriggerMarshalsTransitionRequest(t *testing.T) {
	daemon, client := startDaemon(t, nil)

	token := interfaces.Token{1, 2, 3, 4}
	reconnect := interfaces.LcTap
	err := client.Trigger(nil, interfaces.LcStateTestUnlocked1, &token,
		false, 100*time.Millisecond, &reconnect)
	require.NoError(t, err)

	require.Len(t, daemon.ops, 1)
	params, ok := daemon.ops[0].Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(interfaces.LcStateTestUnlocked1), params["target"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3), float64(4)}, params["token"])
	assert.Equal(t, "LC", params["reconnect_tap"])
	assert.Equal(t, float64(100), params["reset_delay_ms"])
}
