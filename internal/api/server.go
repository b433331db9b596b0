package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/rovercontrol/robot-panel/internal/config"
	"github.com/rovercontrol/robot-panel/internal/metrics"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
	"github.com/rovercontrol/robot-panel/internal/robot"
)

// Server represents the robot-control HTTP gateway
type Server struct {
	config     *config.Config
	controller *robot.Controller
	logs       *LogBuffer
	commands   *CommandBuffer
	hub        *TelemetryHub
	mux        *http.ServeMux
	handler    http.Handler
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logBuf *LogBuffer) *Server {
	if logBuf == nil {
		logBuf = NewLogBuffer(cfg.Server.LogCapacity)
	}

	s := &Server{
		config: cfg,
		controller: robot.NewController(robot.Options{
			BufferSize:      cfg.Robot.BufferSize,
			ResponseTimeout: cfg.Robot.ResponseTimeout,
			RequestAck:      cfg.Robot.RequestAck,
		}),
		logs:     logBuf,
		commands: NewCommandBuffer(cfg.Server.HistoryCapacity),
		hub:      NewTelemetryHub(originChecker(cfg.Server.CORSOrigins), cfg.Stream.PingInterval),
		mux:      http.NewServeMux(),
	}

	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(withMetrics(s.mux))
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Panel endpoints
	s.mux.HandleFunc("POST /connect", s.handleConnect)
	s.mux.HandleFunc("PUT /telecommand/", s.handleTelecommand)
	s.mux.HandleFunc("GET /telementry_request/", s.handleTelemetry)

	// Health and status
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("GET /api/commands", s.handleCommands)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Live telemetry
	s.mux.Handle("GET /ws/telemetry", s.hub)

	// Web UI
	s.mux.HandleFunc("GET /{$}", s.handleUI)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Controller exposes the robot controller
func (s *Server) Controller() *robot.Controller {
	return s.controller
}

// Hub exposes the telemetry broadcaster
func (s *Server) Hub() *TelemetryHub {
	return s.hub
}

// Start serves on the configured address until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Robot.AutoConnect {
		s.autoConnect(ctx)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Close()
	s.controller.Disconnect()
	metrics.SetConnected(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) autoConnect(ctx context.Context) {
	protocol, err := robot.ParseProtocol(s.config.Robot.Protocol)
	if err != nil {
		s.logs.LogWarn("Auto-connect skipped: %v", err)
		return
	}
	target := robot.Target{Host: s.config.Robot.Address, Port: s.config.Robot.Port, Protocol: protocol}
	if err := s.controller.Connect(ctx, target); err != nil {
		s.logs.LogWarn("Auto-connect to %s failed: %v", target, err)
		return
	}
	metrics.SetConnected(true)
	s.logs.LogInfo("Auto-connected to robot at %s", target)
}

// ConnectRequest is the body of POST /connect
type ConnectRequest struct {
	IP       string `json:"ip"`
	Port     *int   `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// TelecommandRequest is the body of PUT /telecommand/
type TelecommandRequest struct {
	Command  string `json:"command"`
	Duration *int   `json:"duration"`
	Angle    *int   `json:"angle"`
}

// handleConnect opens the robot link
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Port == nil {
		writeText(w, http.StatusBadRequest, "Invalid port: must be an integer")
		return
	}
	if req.Protocol == "" {
		req.Protocol = s.config.Robot.Protocol
	}
	protocol, err := robot.ParseProtocol(req.Protocol)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	target := robot.Target{Host: strings.TrimSpace(req.IP), Port: *req.Port, Protocol: protocol}
	if err := s.controller.Connect(r.Context(), target); err != nil {
		s.logs.LogError("Connect to %s failed: %v", target, err)
		writeText(w, statusFor(err), "Failed to connect: "+err.Error())
		return
	}

	metrics.SetConnected(true)
	s.logs.LogInfo("Connected to robot at %s", target)
	writeText(w, http.StatusOK, fmt.Sprintf("Connected to robot at %s over %s", target.Addr(), strings.ToUpper(string(protocol))))
}

// handleTelecommand forwards a drive or sleep command to the robot
func (s *Server) handleTelecommand(w http.ResponseWriter, r *http.Request) {
	var req TelecommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	command := strings.ToLower(strings.TrimSpace(req.Command))
	if command == "" {
		writeText(w, http.StatusBadRequest, "Missing command")
		return
	}

	id := s.commands.Start(command, req.Duration, req.Angle)

	duration, angle := 0, 0
	if command != robot.SleepCommand {
		if req.Duration == nil || req.Angle == nil {
			s.commands.Finish(id, StatusFailed, 0, "duration and angle must be integers")
			writeText(w, http.StatusBadRequest, "Invalid command: duration and angle must be integers")
			return
		}
		duration, angle = *req.Duration, *req.Angle
	}

	start := time.Now()
	reply, err := s.controller.Execute(r.Context(), command, duration, angle)
	metrics.RobotRoundTrip.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, robot.ErrNak):
		metrics.TelecommandsTotal.WithLabelValues(commandLabel(command), "nak").Inc()
		s.commands.Finish(id, StatusNak, reply.PktCount, err.Error())
		s.logs.LogWarn("Robot rejected %s (packet %d)", command, reply.PktCount)
		writeText(w, http.StatusBadGateway, fmt.Sprintf("Robot rejected command %s (packet %d)", command, reply.PktCount))
	case err != nil:
		metrics.TelecommandsTotal.WithLabelValues(commandLabel(command), "error").Inc()
		s.commands.Finish(id, StatusFailed, 0, err.Error())
		s.logs.LogError("Telecommand %s failed: %v", command, err)
		writeText(w, statusFor(err), "Command failed: "+err.Error())
	default:
		metrics.TelecommandsTotal.WithLabelValues(commandLabel(command), "acked").Inc()
		s.commands.Finish(id, StatusAcked, reply.PktCount, "")
		s.logs.LogInfo("Telecommand %s acknowledged (packet %d)", command, reply.PktCount)
		writeText(w, http.StatusOK, fmt.Sprintf("Command %s acknowledged (packet %d)", command, reply.PktCount))
	}
}

// commandLabel maps a client-supplied command onto a fixed set of metric
// label values
func commandLabel(command string) string {
	if command == robot.SleepCommand {
		return robot.SleepCommand
	}
	if dir, ok := pktdef.ParseDirection(command); ok {
		return pktdef.DirectionName(dir)
	}
	return "invalid"
}

// handleTelemetry reads a telemetry snapshot from the robot
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	t, err := s.controller.RequestTelemetry(r.Context())
	metrics.RobotRoundTrip.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TelemetryRequestsTotal.WithLabelValues("error").Inc()
		s.logs.LogError("Telemetry request failed: %v", err)
		writeText(w, statusFor(err), "Telemetry request failed: "+err.Error())
		return
	}

	metrics.TelemetryRequestsTotal.WithLabelValues("ok").Inc()
	s.hub.Publish(t)
	writeText(w, http.StatusOK, t.String())
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
	})
}

// handleStatus returns gateway and robot link status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":      "running",
		"robot":       s.controller.Status(),
		"subscribers": s.hub.Count(),
		"commands":    len(s.commands.Entries()),
	})
}

// handleLogs returns captured log entries, filtered by ?level=warn,error
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var levels []string
	if v := r.URL.Query().Get("level"); v != "" {
		levels = strings.Split(v, ",")
	}
	writeJSON(w, map[string]interface{}{
		"entries": s.logs.Entries(levels),
	})
}

// handleCommands returns recent telecommands, newest first
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"commands": s.commands.Entries(),
	})
}

// handleUI serves the web panel
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(webUI))
}

// statusFor maps controller errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, robot.ErrInvalidTarget),
		errors.Is(err, robot.ErrUnknownCommand),
		errors.Is(err, robot.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, robot.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, robot.ErrNoResponse),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)] || sameHost(origin, r.Host)
	}
}

func sameHost(origin, host string) bool {
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	return strings.EqualFold(origin, host)
}
