package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public intake endpoints behind intakeLimit and
// the doctor endpoints behind requireSession.
func (h *Handler) RegisterRoutes(api *echo.Group, requireSession, intakeLimit echo.MiddlewareFunc) {
	intake := api.Group("/intake", intakeLimit)
	intake.POST("", h.SubmitIntake)
	intake.POST("/validate", h.ValidateIntake)
	api.GET("/intake/options", h.IntakeOptions)

	doctor := api.Group("/patients", requireSession)
	doctor.GET("", h.ListPatients)
	doctor.GET("/export", h.ExportPatients)
	doctor.GET("/:id", h.GetPatient)
	doctor.PUT("/:id", h.UpdatePatient)
	doctor.DELETE("/:id", h.DeletePatient)
}

func (h *Handler) SubmitIntake(c echo.Context) error {
	f, err := decodeForm(c)
	if err != nil {
		return respondError(c, err)
	}
	rec, err := h.svc.Submit(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ValidateIntake(c echo.Context) error {
	f, err := decodeForm(c)
	if err != nil {
		return respondError(c, err)
	}
	valid, err := h.svc.Validate(f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, valid)
}

// IntakeOptions lists the enumerations the intake form offers.
func (h *Handler) IntakeOptions(c echo.Context) error {
	conditions := Conditions{}.ConditionFlags()
	labels := make([]string, len(conditions))
	for i, fl := range conditions {
		labels[i] = fl.Label
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sex":                Sexes,
		"bloodType":          BloodTypes,
		"physicianSpecialty": PhysicianSpecialties,
		"conditions":         labels,
		"schemaVersion":      CurrentSchemaVersion,
	})
}

func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		records []*Record
		err     error
	)
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		records, err = h.svc.Refetch(ctx)
	} else {
		records, err = h.svc.List(ctx)
	}
	if err != nil {
		return respondError(c, err)
	}

	pg := pagination.FromContext(c)
	page := pagination.Page(records, pg)
	if summary, _ := strconv.ParseBool(c.QueryParam("summary")); summary {
		rows := make([]Summary, len(page))
		for i, r := range page {
			rows[i] = r.Summarize()
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(rows, len(records), pg.Limit, pg.Offset))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(records), pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// UpdatePatient replaces a record. restamp=true moves its submission date
// to now.
func (h *Handler) UpdatePatient(c echo.Context) error {
	f, err := decodeForm(c)
	if err != nil {
		return respondError(c, err)
	}
	var opts []UpdateOption
	if restamp, _ := strconv.ParseBool(c.QueryParam("restamp")); restamp {
		opts = append(opts, Restamp())
	}
	rec, err := h.svc.Edit(c.Request().Context(), c.Param("id"), f, opts...)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ExportPatients(c echo.Context) error {
	records, err := h.svc.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	var buf bytes.Buffer
	if err := ExportXLSX(records, &buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not build export")
	}
	name := "patients-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// decodeForm reads a JSON form body. A value of the wrong JSON type is
// reported against its field like any other validation failure.
func decodeForm(c echo.Context) (Form, error) {
	var f Form
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return f, httpErr
		}
		return f, echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}
	if err := json.Unmarshal(body, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field := typeErr.Field
			if i := strings.LastIndex(field, "."); i >= 0 {
				field = field[i+1:]
			}
			return f, &ValidationError{Fields: FieldErrors{field: "Invalid value"}}
		}
		return f, echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}
	return f, nil
}

func respondError(c echo.Context, err error) error {
	if ve, ok := IsValidation(err); ok {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"errors": ve.Fields})
	}
	var httpErr *echo.HTTPError
	var storageErr *StorageError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient record not found")
	case errors.Is(err, ErrDuplicateID):
		return echo.NewHTTPError(http.StatusConflict, "patient record id already exists")
	case errors.As(err, &storageErr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "patient storage is unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
