package statusservice

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/moodsense/moody/internal/pkg/persistence"
	"github.com/moodsense/moody/internal/pkg/status"
	"github.com/moodsense/moody/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads job info
type DB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadPrediction(ctx context.Context, uploadID string) (*persistence.Prediction, error)
	Live(ctx context.Context) error
}

// Data keeps data required for service work
type Data struct {
	Port int
	DB   DB
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting MOODY status service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return errors.New("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("moody_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable, "DB down")
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type result struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
	Scores     *persistence.Scores `json:"scores,omitempty"`
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		ctx := c.Request().Context()
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		var res result
		if job == nil {
			res = result{ID: id, Status: "NOT_FOUND", Error: "NOT_FOUND"}
		} else {
			res = *mapJob(job)
			if status.From(job.Status) == status.Completed {
				pred, err := data.DB.LoadPrediction(ctx, job.UploadID)
				if err != nil {
					goapp.Log.Error().Err(err).Send()
					return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
				}
				if pred != nil {
					res.Scores = &pred.Scores
				}
			}
		}
		return c.JSON(http.StatusOK, res)
	}
}

func mapJob(job *persistence.Job) *result {
	return &result{
		ID:         job.ID,
		Status:     job.Status,
		Error:      utils.FromSQLStr(job.Error),
		StartedAt:  utils.FromSQLTimePtr(job.StartedAt),
		FinishedAt: utils.FromSQLTimePtr(job.FinishedAt),
	}
}
