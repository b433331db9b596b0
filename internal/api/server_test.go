package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovercontrol/robot-panel/internal/config"
	"github.com/rovercontrol/robot-panel/internal/metrics"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
	"github.com/rovercontrol/robot-panel/internal/robot"
)

func newTestGateway(t *testing.T) (*Server, *httptest.Server, *robot.Simulator) {
	t.Helper()

	sim, err := robot.NewSimulator(robot.ProtocolUDP, "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go sim.Serve(ctx)

	cfg := config.Default()
	cfg.Robot.ResponseTimeout = time.Second
	s := NewServer(cfg, NewLogBuffer(100))
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ts.Close()
		s.Hub().Close()
		s.Controller().Disconnect()
		cancel()
		sim.Close()
	})
	return s, ts, sim
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func connectBody(target robot.Target) string {
	return fmt.Sprintf(`{"ip":%q,"port":%d,"protocol":%q}`, target.Host, target.Port, target.Protocol)
}

func TestTelecommandRequiresConnection(t *testing.T) {
	_, ts, _ := newTestGateway(t)

	code, body := do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"forward","duration":5,"angle":10}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "not connected")

	code, _ = do(t, http.MethodGet, ts.URL+"/telementry_request/", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestPanelFlowAgainstSimulator(t *testing.T) {
	s, ts, sim := newTestGateway(t)

	code, body := do(t, http.MethodPost, ts.URL+"/connect", connectBody(sim.Target()))
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, "Connected to robot at")
	assert.True(t, s.Controller().Status().Connected)

	code, body = do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"forward","duration":5,"angle":10}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Command forward acknowledged (packet 1)", body)

	code, body = do(t, http.MethodGet, ts.URL+"/telementry_request/", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, "LastPktCounter: 1")
	assert.Contains(t, body, "LastCmd: forward")
	assert.Contains(t, body, "LastCmdSpeed: 10")

	code, body = do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"sleep","duration":0,"angle":0}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.True(t, sim.Asleep())

	history := s.commands.Entries()
	require.Len(t, history, 2)
	assert.Equal(t, "sleep", history[0].Command)
	assert.Equal(t, StatusAcked, history[1].Status)
	assert.NotEmpty(t, history[1].ID)
}

func TestConnectWithoutProtocolUsesDefault(t *testing.T) {
	s, ts, sim := newTestGateway(t)
	target := sim.Target()

	code, body := do(t, http.MethodPost, ts.URL+"/connect", fmt.Sprintf(`{"ip":%q,"port":%d}`, target.Host, target.Port))
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, "UDP")
	assert.Equal(t, robot.ProtocolUDP, s.Controller().Status().Target.Protocol)
}

func TestBadRequests(t *testing.T) {
	_, ts, sim := newTestGateway(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"nan port", http.MethodPost, "/connect", `{"ip":"127.0.0.1","port":null}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/connect", `{"ip":`, http.StatusBadRequest},
		{"bad protocol", http.MethodPost, "/connect", `{"ip":"127.0.0.1","port":5000,"protocol":"serial"}`, http.StatusBadRequest},
		{"port range", http.MethodPost, "/connect", `{"ip":"127.0.0.1","port":70000}`, http.StatusBadRequest},
		{"missing command", http.MethodPut, "/telecommand/", `{"duration":1,"angle":1}`, http.StatusBadRequest},
		{"nan duration", http.MethodPut, "/telecommand/", `{"command":"left","duration":null,"angle":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, tc.method, ts.URL+tc.path, tc.body)
			assert.Equal(t, tc.code, code, body)
		})
	}

	code, _ := do(t, http.MethodPost, ts.URL+"/connect", connectBody(sim.Target()))
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"jump","duration":1,"angle":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "unknown command")

	code, _ = do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"left","duration":300,"angle":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodGet, ts.URL+"/telecommand/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestStatusHealthAndUI(t *testing.T) {
	_, ts, _ := newTestGateway(t)

	code, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"healthy"}`, body)

	code, body = do(t, http.MethodGet, ts.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, code)
	var status struct {
		Status string       `json:"status"`
		Robot  robot.Status `json:"robot"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "running", status.Status)
	assert.False(t, status.Robot.Connected)

	code, body = do(t, http.MethodGet, ts.URL+"/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/telementry_request/")
	assert.Contains(t, body, `id="protocol"`)

	code, _ = do(t, http.MethodGet, ts.URL+"/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "robotpanel_http_requests_total")
}

func TestLogsEndpoint(t *testing.T) {
	s, ts, _ := newTestGateway(t)
	s.logs.Add(LevelInfo, "hello")
	s.logs.Add(LevelError, "boom")

	code, body := do(t, http.MethodGet, ts.URL+"/api/logs?level=error", "")
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Entries []LogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "boom", out.Entries[0].Message)
}

func TestTelemetryWebsocket(t *testing.T) {
	_, ts, sim := newTestGateway(t)

	code, _ := do(t, http.MethodPost, ts.URL+"/connect", connectBody(sim.Target()))
	require.Equal(t, http.StatusOK, code)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/telemetry"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	code, _ = do(t, http.MethodPut, ts.URL+"/telecommand/", `{"command":"right","duration":2,"angle":45}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodGet, ts.URL+"/telementry_request/", "")
	require.Equal(t, http.StatusOK, code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame TelemetryFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "telemetry", frame.Type)
	assert.Equal(t, pktdef.Right, frame.Telemetry.LastCmd)
	assert.Equal(t, uint8(45), frame.Telemetry.LastCmdSpeed)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "pong", frame.Type)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(robot.ErrNotConnected))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(fmt.Errorf("wrap: %w", robot.ErrNoResponse)))
	assert.Equal(t, http.StatusBadRequest, statusFor(robot.ErrOutOfRange))
	assert.Equal(t, http.StatusBadGateway, statusFor(robot.ErrBadReply))
}

func TestCommandLabel(t *testing.T) {
	assert.Equal(t, "sleep", commandLabel("sleep"))
	assert.Equal(t, "left", commandLabel("left"))
	assert.Equal(t, "invalid", commandLabel("junk1"))
}

func TestUnknownCommandsShareOneMetricSeries(t *testing.T) {
	_, ts, _ := newTestGateway(t)

	before := testutil.CollectAndCount(metrics.TelecommandsTotal)
	for i := 0; i < 20; i++ {
		do(t, http.MethodPut, ts.URL+"/telecommand/", fmt.Sprintf(`{"command":"junk%d","duration":1,"angle":1}`, i))
	}
	after := testutil.CollectAndCount(metrics.TelecommandsTotal)
	assert.LessOrEqual(t, after, before+1)
}
