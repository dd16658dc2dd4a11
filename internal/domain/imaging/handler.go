package imaging

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aidims/aidims/internal/platform/apperror"
	"github.com/aidims/aidims/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dicom := api.Group("/dicom")
	dicom.POST("/upload", h.Upload, auth.RequireRole("Technician", "Doctor"))

	dicom.GET("/orders/:orderId/instances", h.ListInstancesByOrder)
	dicom.GET("/instances/:id/preview", h.Preview)
	dicom.GET("/instances/:id/file", h.File)
}

// Upload accepts a multipart DICOM file plus its order and patient
// association and runs the ingestion flow.
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apperror.Validation("multipart field \"file\" is required")
	}
	src, err := file.Open()
	if err != nil {
		return apperror.Validation("uploaded file could not be opened")
	}
	defer src.Close()
	image, err := io.ReadAll(src)
	if err != nil {
		return apperror.Validation("uploaded file could not be read")
	}

	orderID, err := optionalUUID(c.FormValue("order_id"))
	if err != nil {
		return apperror.Validation("order_id is not a valid uuid")
	}
	patientID, err := optionalUUID(c.FormValue("patient_id"))
	if err != nil {
		return apperror.Validation("patient_id is not a valid uuid")
	}

	result, err := h.svc.Ingest(c.Request().Context(), image, orderID, patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListInstancesByOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		return apperror.Validation("invalid order id")
	}
	instances, err := h.svc.InstancesByOrder(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	if instances == nil {
		instances = []*Instance{}
	}
	return c.JSON(http.StatusOK, instances)
}

func (h *Handler) Preview(c echo.Context) error {
	data, contentType, err := h.svc.InstancePreview(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (h *Handler) File(c echo.Context) error {
	data, contentType, err := h.svc.InstanceFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func optionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
