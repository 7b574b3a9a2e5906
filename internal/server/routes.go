package server

import (
	"net/http"
	"time"

	"github.com/berfenger/essload2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type statusView struct {
	Enabled    bool     `json:"enabled"`
	ACSource   int      `json:"ac_source"`
	Gate       string   `json:"gate"`
	Output     int      `json:"output"`
	ChargeMode string   `json:"charge_mode"`
	Throttling *bool    `json:"throttling,omitempty"`
	TickCount  uint64   `json:"tick_count"`
	PVAverage  float64  `json:"pv_average"`
	BattAvg    float64  `json:"battery_power_average"`
	Integral   float64  `json:"integral"`
	Target     float64  `json:"battery_target_power"`
	Surplus    float64  `json:"surplus_power"`
	Missing    []string `json:"missing,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetControllerStatusRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetControllerStatusResponse)
	if !ok || response.HasResponseError() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "status unavailable")
	}
	return c.JSON(http.StatusOK, toStatusView(response.Status))
}

func toStatusView(status domain.ControllerStatus) statusView {
	return statusView{
		Enabled:    status.Enabled,
		ACSource:   status.ACSource,
		Gate:       status.Last.Gate.String(),
		Output:     status.Last.Output,
		ChargeMode: status.Last.ChargeMode.String(),
		Throttling: status.Last.Throttling,
		TickCount:  status.State.TickCount,
		PVAverage:  status.State.PVAverage,
		BattAvg:    status.State.BatteryPowerAverage,
		Integral:   status.State.Integral,
		Target:     status.Last.TargetPower,
		Surplus:    status.Last.SurplusPower,
		Missing:    status.Last.Missing,
	}
}
