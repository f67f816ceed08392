package handler

import (
	"errors"
	"net/http"
	"reflect"

	"settlepos/internal/apierror"
	"settlepos/internal/infra"
	"settlepos/internal/model"
	"settlepos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails —
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// respondError maps the service error taxonomy to HTTP status codes. Every
// handler funnels failures through here so the mapping lives in one place.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingInstrumentDetails):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrOverCollection),
		errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrSessionAlreadyOpen),
		errors.Is(err, model.ErrSessionClosed),
		errors.Is(err, model.ErrSessionNotOpen),
		errors.Is(err, model.ErrNoOpenSession),
		errors.Is(err, service.ErrNoteRequired):
		status = http.StatusConflict
	case errors.Is(err, infra.ErrGatewayTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, infra.ErrGatewayUnavailable),
		errors.Is(err, infra.ErrCircuitOpen):
		status = http.StatusBadGateway
	}
	c.JSON(status, apierror.New(err.Error()))
}
