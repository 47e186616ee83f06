package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/dashboard-reconciler/charts"
	"storage-dashboard/dashboard-reconciler/service"
	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/settings"
)

const maxChartDays = 365

// Dashboard is the reconciled view served by the API.
type Dashboard interface {
	Fetch(ctx context.Context) error
	Snapshot() (*datamodel.Snapshot, time.Time)
	Graph() ([]service.Node, []service.Edge)
	Summary() service.Summary
	Detail() *service.NodeDetail
	SelectNode(ctx context.Context, nodeID string) (*service.NodeDetail, error)
	ClearSelection(ctx context.Context)
	ToggleFile(ctx context.Context, fileName string) bool
	AuditBlock(ctx context.Context, fileID, blockID string) (bool, error)
	AuditFile(ctx context.Context, fileID string) (*service.FileAuditResult, error)
}

var _ Dashboard = (*service.Reconciler)(nil)

type Server struct {
	app         *fiber.App
	dashboard   Dashboard
	settingsObj *settings.SettingsObj
	now         func() time.Time
}

func NewServer(dashboard Dashboard, settingsObj *settings.SettingsObj) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// file names may contain spaces and other escaped characters
		UnescapePath: true,
		// route params are kept as selection, expansion and audit keys after the handler returns
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestLogger)

	s := &Server{
		app:         app,
		dashboard:   dashboard,
		settingsObj: settingsObj,
		now:         time.Now,
	}

	s.registerRoutes()

	return s
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.settingsObj.API.Host, s.settingsObj.API.Port)

	log.WithField("addr", addr).Info("dashboard api listening")

	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	v1 := s.app.Group("/api/v1")

	v1.Get("/graph", s.getGraph)
	v1.Get("/summary", s.getSummary)
	v1.Get("/charts", s.getCharts)

	v1.Get("/detail", s.getDetail)
	v1.Post("/nodes/:id/select", s.selectNode)
	v1.Delete("/selection", s.clearSelection)
	v1.Post("/files/:name/toggle", s.toggleFile)

	v1.Post("/audit/:fileId/:blockId", s.auditBlock)
	v1.Post("/audit/:fileId", s.auditFile)

	v1.Post("/refresh", s.refresh)
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	log.WithField("method", c.Method()).
		WithField("path", c.Path()).
		WithField("status", c.Response().StatusCode()).
		WithField("latency", time.Since(start)).
		Debug("api request")

	return err
}

func errorResponse(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) getGraph(c *fiber.Ctx) error {
	nodes, edges := s.dashboard.Graph()

	return c.JSON(fiber.Map{"nodes": nodes, "edges": edges})
}

func (s *Server) getSummary(c *fiber.Ctx) error {
	return c.JSON(s.dashboard.Summary())
}

func (s *Server) getCharts(c *fiber.Ctx) error {
	days := c.QueryInt("days", s.settingsObj.Reconciler.ChartDays)
	if days < 1 || days > maxChartDays {
		return errorResponse(c, fiber.StatusBadRequest, fmt.Errorf("days must be between 1 and %d", maxChartDays))
	}

	snapshot, _ := s.dashboard.Snapshot()

	return c.JSON(charts.Build(snapshot, days, s.now()))
}

func (s *Server) getDetail(c *fiber.Ctx) error {
	detail := s.dashboard.Detail()
	if detail == nil {
		return errorResponse(c, fiber.StatusNotFound, errors.New("no node selected"))
	}

	return c.JSON(detail)
}

func (s *Server) selectNode(c *fiber.Ctx) error {
	detail, err := s.dashboard.SelectNode(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrNodeNotFound) {
			return errorResponse(c, fiber.StatusNotFound, err)
		}

		return errorResponse(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(detail)
}

func (s *Server) clearSelection(c *fiber.Ctx) error {
	s.dashboard.ClearSelection(c.UserContext())

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) toggleFile(c *fiber.Ctx) error {
	name := c.Params("name")
	expanded := s.dashboard.ToggleFile(c.UserContext(), name)

	return c.JSON(fiber.Map{"name": name, "expanded": expanded})
}

func (s *Server) auditBlock(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	blockID := c.Params("blockId")

	passed, err := s.dashboard.AuditBlock(c.UserContext(), fileID, blockID)
	if err != nil {
		return errorResponse(c, fiber.StatusBadGateway, err)
	}

	return c.JSON(fiber.Map{"fileId": fileID, "blockId": blockID, "success": passed})
}

func (s *Server) auditFile(c *fiber.Ctx) error {
	result, err := s.dashboard.AuditFile(c.UserContext(), c.Params("fileId"))

	switch {
	case errors.Is(err, service.ErrFileNotFound):
		return errorResponse(c, fiber.StatusNotFound, err)
	case errors.Is(err, service.ErrNoVersions):
		return errorResponse(c, fiber.StatusConflict, err)
	case errors.Is(err, service.ErrNoSnapshotYet):
		return errorResponse(c, fiber.StatusServiceUnavailable, err)
	case err != nil && result == nil:
		return errorResponse(c, fiber.StatusInternalServerError, err)
	case err != nil:
		// failed requests are listed in the result and count against the file
		log.WithError(err).WithField("fileId", result.FileID).Warn("some block audits could not be completed")
	}

	return c.JSON(result)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	err := s.dashboard.Fetch(c.UserContext())
	if err != nil {
		return errorResponse(c, fiber.StatusBadGateway, err)
	}

	return c.JSON(s.dashboard.Summary())
}
