// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api serves bridge status, device state and equipment commands
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// DefaultCommandTimeout bounds one command including its bus retries.
const DefaultCommandTimeout = 10 * time.Second

// Status is the body of GET /api/status.
type Status struct {
	Connected bool              `json:"connected"`
	State     string            `json:"state"`
	Sync      pentair.SyncStats `json:"sync"`
	Devices   int               `json:"devices"`
}

// Snapshotter returns the latest device state. *equipment.Store implements
// it.
type Snapshotter interface {
	Snapshot() []equipment.Snapshot
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them.
type Deps struct {
	Store       Snapshotter
	Commands    equipment.Commander
	Status      func() Status
	Ready       func() bool
	Metrics     http.Handler
	MetricsPath string
	Logger      *zap.Logger
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	srv     *http.Server
	deps    Deps
	timeout time.Duration
}

// New builds the router and server.
func New(cfg config.APIConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{deps: deps, timeout: DefaultCommandTimeout}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if deps.Ready == nil || deps.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics))
	}

	g := r.Group("/api")
	if deps.Status != nil {
		g.GET("/status", s.status)
	}
	if deps.Store != nil {
		g.GET("/devices", s.devices)
		g.GET("/devices/:id", s.device)
	}
	if deps.Commands != nil {
		g.POST("/circuits/:id", s.setCircuit)
		g.POST("/setpoint/:body", s.setSetpoint)
		g.POST("/light", s.setLight)
		g.POST("/pumps/:id/rpm", s.setPumpRPM)
		g.POST("/pumps/:id/program", s.runPumpProgram)
		g.POST("/salt", s.setSalt)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown (blocking).
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Reads
////////////////////////////////////////////////////////////////

type deviceView struct {
	ID      string                    `json:"id"`
	Kind    equipment.Kind            `json:"kind"`
	Updated time.Time                 `json:"updated"`
	Records map[string]pentair.Record `json:"records"`
	Derived map[string]float64        `json:"derived,omitempty"`
}

func viewOf(snap equipment.Snapshot) deviceView {
	v := deviceView{
		ID:      fmt.Sprintf("0x%02X", snap.ID),
		Kind:    snap.Kind,
		Updated: snap.Updated,
		Records: make(map[string]pentair.Record, len(snap.Records)),
	}
	for name, e := range snap.Records {
		if _, ok := e.Record.(pentair.Unrecognized); ok {
			continue
		}
		v.Records[name] = e.Record
		for k, d := range e.Derived {
			if v.Derived == nil {
				v.Derived = make(map[string]float64)
			}
			v.Derived[k] = d
		}
	}
	return v
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Status())
}

func (s *Server) devices(c *gin.Context) {
	snaps := s.deps.Store.Snapshot()
	out := make([]deviceView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, viewOf(snap))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) device(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, snap := range s.deps.Store.Snapshot() {
		if snap.ID == id {
			c.JSON(http.StatusOK, viewOf(snap))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no state for device"})
}

// Commands
////////////////////////////////////////////////////////////////

type circuitRequest struct {
	On *bool `json:"on" binding:"required"`
}

type setpointRequest struct {
	Degrees int  `json:"degrees" binding:"required"`
	Celsius bool `json:"celsius"`
}

type lightRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type rpmRequest struct {
	RPM int `json:"rpm" binding:"required"`
}

type programRequest struct {
	Program int `json:"program" binding:"required"`
}

type saltRequest struct {
	Percent *int `json:"percent" binding:"required"`
}

func (s *Server) setCircuit(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "circuit id must be a number"})
		return
	}
	var req circuitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "circuit", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.SetCircuit(ctx, id, *req.On)
	})
}

func (s *Server) setSetpoint(c *gin.Context) {
	body := c.Param("body")
	if body != "pool" && body != "spa" {
		c.JSON(http.StatusNotFound, gin.H{"error": "body must be pool or spa"})
		return
	}
	var req setpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "setpoint", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.SetSetpoint(ctx, body == "pool", req.Degrees, req.Celsius)
	})
}

func (s *Server) setLight(c *gin.Context) {
	var req lightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := pentair.ParseLightMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "light", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.SetLightMode(ctx, mode)
	})
}

func (s *Server) setPumpRPM(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req rpmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "pump rpm", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.SetPumpRPM(ctx, id, req.RPM)
	})
}

func (s *Server) runPumpProgram(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req programRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "pump program", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.RunPumpProgram(ctx, id, req.Program)
	})
}

func (s *Server) setSalt(c *gin.Context) {
	var req saltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, "salt output", func(ctx context.Context) (bool, error) {
		return s.deps.Commands.SetSaltOutput(ctx, *req.Percent)
	})
}

// run executes a command with the request context and maps the outcome to
// an HTTP status.
func (s *Server) run(c *gin.Context, what string, fn func(ctx context.Context) (bool, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	ok, err := fn(ctx)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.deps.Logger.Warn("command failed", zap.String("command", what), zap.Error(err))
		}
		c.JSON(code, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusGatewayTimeout, gin.H{"ok": false, "error": "no response from equipment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, equipment.ErrNotManaged):
		return http.StatusNotFound
	case errors.Is(err, pentair.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, equipment.ErrNoPreamble),
		errors.Is(err, equipment.ErrOtherMaster),
		errors.Is(err, equipment.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, bus.ErrNoTransport), errors.Is(err, bus.ErrBusClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseID(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad device id %q", s)
	}
	return uint8(n), nil
}
