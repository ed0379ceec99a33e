package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/bloggy/backend/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	codeInvalidBody  = "request.invalid_body"
	codeInvalidQuery = "request.invalid_query"
	codeInternal     = "internal"
	internalMessage  = "internal server error"
)

type errorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func errorBody(kind, code, message string) errorResponse {
	return errorResponse{Error: kind, Code: code, Message: message}
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a service error using its kind and code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var serviceErr *errs.Error
	if !errors.As(err, &serviceErr) || serviceErr.Kind() == errs.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		code := codeInternal
		if serviceErr != nil {
			code = serviceErr.Code()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(string(errs.KindInternal), code, internalMessage))
		return
	}

	message := serviceErr.Code()
	if cause := errors.Unwrap(serviceErr); cause != nil {
		message = cause.Error()
	}
	c.AbortWithStatusJSON(statusForKind(serviceErr.Kind()), errorBody(string(serviceErr.Kind()), serviceErr.Code(), message))
}

func (h *httpHandler) respondInvalid(c *gin.Context, code string, err error) {
	response := errorBody(string(errs.KindValidation), code, "invalid request")
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		messages := make([]string, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			response.Fields = append(response.Fields, fieldError{
				Field: fieldErr.Field(),
				Rule:  fieldErr.Tag(),
				Param: fieldErr.Param(),
			})
			messages = append(messages, describeFieldError(fieldErr))
		}
		response.Message = strings.Join(messages, "; ")
	} else if err != nil {
		response.Message = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, response)
}

// bindJSON decodes and validates the request body, writing a 400 on failure.
func (h *httpHandler) bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		h.respondInvalid(c, codeInvalidBody, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		h.respondInvalid(c, codeInvalidBody, err)
		return false
	}
	return true
}

// bindQuery decodes and validates query parameters, writing a 400 on failure.
func (h *httpHandler) bindQuery(c *gin.Context, target any) bool {
	if err := c.ShouldBindQuery(target); err != nil {
		h.respondInvalid(c, codeInvalidQuery, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		h.respondInvalid(c, codeInvalidQuery, err)
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return field.Name
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Pointer {
			if field.IsNil() {
				return true
			}
			field = field.Elem()
		}
		return field.Kind() != reflect.String || strings.TrimSpace(field.String()) != ""
	})
	return validate
}

func describeFieldError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "min":
		if fieldErr.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", fieldErr.Field(), fieldErr.Param())
		}
		return fmt.Sprintf("%s must contain at least %s items", fieldErr.Field(), fieldErr.Param())
	case "max":
		if fieldErr.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", fieldErr.Field(), fieldErr.Param())
		}
		return fmt.Sprintf("%s must contain at most %s items", fieldErr.Field(), fieldErr.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fieldErr.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fieldErr.Field(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fieldErr.Field(), fieldErr.Tag())
	}
}
