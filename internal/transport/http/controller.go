package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/service"
	"github.com/hyopark/stock_master_bridge/utils"
)

const maxPageSize = 100

var allowedOrdering = map[string]struct{}{
	"code":        {},
	"-code":       {},
	"name_kr":     {},
	"-name_kr":    {},
	"updated_at":  {},
	"-updated_at": {},
}

type MasterService interface {
	UpsertSecurities(ctx context.Context, items []model.Security) (model.UpsertResult, error)
	GetSecurity(ctx context.Context, code string) (model.Security, error)
	ListSecurities(ctx context.Context, filter model.SecurityFilter) (model.SecurityPage, error)
	GetStats(ctx context.Context) (model.Stats, error)
}

type Controller struct {
	cfg           *config.Config
	masterService MasterService
}

func NewController(cfg *config.Config, masterService MasterService) *Controller {
	return &Controller{cfg: cfg, masterService: masterService}
}

func (ctrl *Controller) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctrl *Controller) ListStocks(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	op := c.DefaultQuery("op", "and")
	if op != "and" && op != "or" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid op"})
		return
	}

	ordering := c.DefaultQuery("ordering", "code")
	if _, ok := allowedOrdering[ordering]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid ordering"})
		return
	}

	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, errPageSize := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if errPage != nil || errPageSize != nil || page < 1 || pageSize < 1 || pageSize > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid page or page_size"})
		return
	}

	filter := model.SecurityFilter{
		Keywords:   strings.Fields(c.Query("keywords")),
		Op:         op,
		Markets:    nonEmpty(c.QueryArray("markets")),
		Categories: nonEmpty(c.QueryArray("categories")),
		Ordering:   ordering,
		Page:       page,
		PageSize:   pageSize,
	}

	result, err := ctrl.masterService.ListSecurities(ctx, filter)
	if err != nil {
		slog.Error("got error from masterService.ListSecurities", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) GetStock(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	security, err := ctrl.masterService.GetSecurity(ctx, c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found"})
			return
		}
		slog.Error("got error from masterService.GetSecurity", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, security)
}

func (ctrl *Controller) GetStats(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	stats, err := ctrl.masterService.GetStats(ctx)
	if err != nil {
		slog.Error("got error from masterService.GetStats", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

type upsertRequest struct {
	Items []model.Security `json:"items"`
}

// UpsertStocks is the internal bridge endpoint: shared-secret header,
// whole batch reconciled in one transaction.
func (ctrl *Controller) UpsertStocks(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	if !ctrl.isAuthorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
		return
	}

	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid body"})
		return
	}

	result, err := ctrl.masterService.UpsertSecurities(ctx, req.Items)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		slog.Error("got error from masterService.UpsertSecurities", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) isAuthorized(c *gin.Context) bool {
	provided := c.GetHeader("X-Bridge-Key")
	expected := ctrl.cfg.Backend.BridgeKey
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func nonEmpty(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}
