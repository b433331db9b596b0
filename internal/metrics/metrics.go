package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robotpanel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robotpanel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Robot link
	TelecommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robotpanel_telecommands_total",
			Help: "Telecommands sent to the robot by command and outcome",
		},
		[]string{"command", "outcome"}, // acked, nak, error
	)

	TelemetryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robotpanel_telemetry_requests_total",
			Help: "Telemetry requests sent to the robot by outcome",
		},
		[]string{"outcome"},
	)

	RobotRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robotpanel_robot_round_trip_seconds",
			Help:    "Time from sending a packet to decoding the robot's reply",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	RobotConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robotpanel_robot_connected",
			Help: "1 while the gateway holds a link to the robot",
		},
	)

	TelemetrySubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robotpanel_telemetry_subscribers",
			Help: "Number of open telemetry websocket subscribers",
		},
	)
)

// SetConnected records the robot link state
func SetConnected(connected bool) {
	if connected {
		RobotConnected.Set(1)
		return
	}
	RobotConnected.Set(0)
}
