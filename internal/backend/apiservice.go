package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/lenna/internal/backend/database"
	"github.com/jo-hoe/lenna/internal/backend/imageio"
	"github.com/jo-hoe/lenna/internal/core"
	"github.com/labstack/echo/v4"
)

// ShapeHeader carries the processed image shape as "(height, width, channels)"
const ShapeHeader = "X-Image-Shape"

const maxUploadBytes = 32 << 20

type APIService struct {
	coreService *core.CoreService
}

type processQuery struct {
	Format string `query:"format" validate:"omitempty,oneof=png jpg jpeg gif bmp tif tiff"`
}

type runsQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=1000"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	e.GET("/plugins", s.listPluginsHandler)
	e.GET("/plugins/:name", s.describePluginHandler)
	e.POST("/plugins/:name/process", s.processHandler)

	e.GET("/runs", s.listRunsHandler)
	e.GET("/runs/:id", s.getRunHandler)
}

func (s *APIService) listPluginsHandler(c echo.Context) error {
	infos, err := s.coreService.Plugins()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *APIService) describePluginHandler(c echo.Context) error {
	name := c.Param("name")
	if !s.coreService.Registry().IsRegistered(name) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown plugin: %s", name))
	}
	info, err := s.coreService.Describe(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (s *APIService) processHandler(c echo.Context) error {
	name := c.Param("name")
	if !s.coreService.Registry().IsRegistered(name) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown plugin: %s", name))
	}

	var query processQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&query); err != nil {
		return err
	}
	format := imageio.FormatPNG
	if query.Format != "" {
		parsed, err := imageio.ParseFormat(query.Format)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		format = parsed
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing image field")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read image")
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read image")
	}
	if len(data) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}

	var overrides map[string]any
	if raw := c.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("config must be a JSON object: %v", err))
		}
	}

	img, err := s.coreService.ImageOptions().Decode(fileHeader.Filename, data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if _, err := s.coreService.ProcessImage(ctx, []string{name}, []map[string]any{overrides}, img); err != nil {
		slog.Error("processing failed", "plugin", name, "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, img.Image, format); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(ShapeHeader, imageio.ShapeOf(img.Image).String())
	return c.Blob(http.StatusOK, imageio.ContentType(format), buf.Bytes())
}

func (s *APIService) listRunsHandler(c echo.Context) error {
	query := runsQuery{Limit: 50}
	if err := c.Bind(&query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&query); err != nil {
		return err
	}

	runs, err := s.coreService.ListRuns(query.Limit)
	if err != nil {
		return historyError(err)
	}
	if runs == nil {
		runs = []*database.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *APIService) getRunHandler(c echo.Context) error {
	run, err := s.coreService.GetRun(c.Param("id"))
	if err != nil {
		return historyError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func historyError(err error) error {
	switch {
	case errors.Is(err, core.ErrHistoryDisabled), errors.Is(err, database.ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
