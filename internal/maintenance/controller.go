package maintenance

import (
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/storage"
	"github.com/destekhq/support-platform/pkg/protocol"
)

type maintenanceController struct {
	selftest *SelfTest
	repairer *Repairer
	storage  *storage.Storage
	logger   *slog.Logger
}

func (ctrl *maintenanceController) RunTests(c echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.selftest.Run())
}

type scheduleResponse struct {
	Times []storage.TestSchedule `json:"times"`
}

func (ctrl *maintenanceController) ListSchedules(c echo.Context) error {
	rows, err := ctrl.storage.ListTestSchedules()
	if err != nil {
		ctrl.logger.Error("list schedules failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
	return c.JSON(http.StatusOK, &scheduleResponse{Times: rows})
}

type addScheduleRequest struct {
	Time string `json:"time"`
	TZ   string `json:"tz,omitempty"`
}

func (ctrl *maintenanceController) AddSchedule(c echo.Context) error {
	var req addScheduleRequest
	if err := c.Bind(&req); err != nil || len(req.Time) != 5 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "time must be HH:MM"})
	}

	if _, err := ctrl.storage.AddTestSchedule(req.Time, true, req.TZ); err != nil {
		ctrl.logger.Error("add schedule failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
	return ctrl.ListSchedules(c)
}

func (ctrl *maintenanceController) DeleteSchedule(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad schedule id"})
	}

	if err := ctrl.storage.DeleteTestSchedule(uint(id)); err != nil {
		ctrl.logger.Error("delete schedule failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
	return ctrl.ListSchedules(c)
}

type repairRequest struct {
	Mode   string `json:"mode"`
	DryRun *bool  `json:"dryRun"`
}

func (ctrl *maintenanceController) RunRepair(c echo.Context) error {
	req := repairRequest{Mode: "safe"}
	if c.Request().Method == http.MethodPost {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.Mode == "" {
			req.Mode = "safe"
		}
	}
	if req.Mode != "safe" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "only safe mode enabled"})
	}

	// dry run unless explicitly disabled
	dry := req.DryRun == nil || *req.DryRun

	plan, err := ctrl.repairer.Plan()
	if err != nil {
		ctrl.logger.Error("repair plan failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}

	if dry {
		return c.JSON(http.StatusOK, map[string]any{"plan": plan, "applied": false})
	}

	result, err := ctrl.repairer.Apply()
	if err != nil {
		ctrl.logger.Error("repair apply failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"plan": plan, "applied": true, "result": result})
}

func (ctrl *maintenanceController) Resolve(router protocol.HttpRouter) error {
	router.POST("/api/test/run", ctrl.RunTests)
	router.GET("/api/test/schedule", ctrl.ListSchedules)
	router.POST("/api/test/schedule", ctrl.AddSchedule)
	router.DELETE("/api/test/schedule/:id", ctrl.DeleteSchedule)
	router.GET("/api/repair/run", ctrl.RunRepair)
	router.POST("/api/repair/run", ctrl.RunRepair)
	return nil
}

var _ protocol.HttpResolvable = (*maintenanceController)(nil)

type newMaintenanceController_Params struct {
	fx.In

	SelfTest *SelfTest
	Repairer *Repairer
	Storage  *storage.Storage
	Logger   *slog.Logger
}

func NewMaintenanceController(params newMaintenanceController_Params) *maintenanceController {
	return &maintenanceController{
		selftest: params.SelfTest,
		repairer: params.Repairer,
		storage:  params.Storage,
		logger:   params.Logger,
	}
}
