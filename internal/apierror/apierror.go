package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Codes is the closed set of API error codes.
var Codes = []string{
	CodeInvalidRequest,
	CodeUnauthorized,
	CodeForbidden,
	CodeNotFound,
	CodeConflict,
	CodeValidation,
	CodeRateLimitExceeded,
	CodeInternal,
}

// Error is the body of every API error response.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, StatusCode: e.StatusCode}
}

func (e *Error) WithMessage(message string) *Error {
	return &Error{Code: e.Code, Message: message, Details: e.Details, StatusCode: e.StatusCode}
}

var (
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "Invalid request body", StatusCode: http.StatusBadRequest}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "Missing or invalid authentication token", StatusCode: http.StatusUnauthorized}
	ErrForbidden      = &Error{Code: CodeForbidden, Message: "You do not have permission to access this resource", StatusCode: http.StatusForbidden}
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrConflict       = &Error{Code: CodeConflict, Message: "Resource already exists", StatusCode: http.StatusConflict}
	ErrValidation     = &Error{Code: CodeValidation, Message: "Validation failed", StatusCode: http.StatusUnprocessableEntity}
	ErrRateLimited    = &Error{Code: CodeRateLimitExceeded, Message: "Too many requests. Please try again later.", StatusCode: http.StatusTooManyRequests}
	ErrInternal       = &Error{Code: CodeInternal, Message: "An unexpected error occurred. Please try again later.", StatusCode: http.StatusInternalServerError}
)

func NotFound(resource string, details map[string]any) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    details,
		StatusCode: http.StatusNotFound,
	}
}

// As returns err as an *Error, mapping anything else to INTERNAL_ERROR.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

// FromBinding turns a gin binding failure into VALIDATION_ERROR with one
// detail per field, or INVALID_REQUEST when the body could not be decoded.
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalidRequest
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fieldName(fe)] = describe(fe)
	}
	return ErrValidation.WithDetails(details)
}

func fieldName(fe validator.FieldError) string {
	return fe.Field()
}

var registerOnce sync.Once

// UseJSONFieldNames makes validation details use json field names.
func UseJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return fld.Name
			}
			return name
		})
	})
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url", "uri":
		return fmt.Sprintf("%s must be a valid URL", name)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", name)
	}
	return fmt.Sprintf("%s is invalid", name)
}

type envelope struct {
	Error *Error `json:"error"`
}

// Abort writes err as the error document and stops the handler chain.
func Abort(c *gin.Context, err error) {
	apiErr := As(err)
	if apiErr.Details == nil {
		apiErr = apiErr.WithDetails(map[string]any{})
	}
	c.AbortWithStatusJSON(apiErr.StatusCode, envelope{Error: apiErr})
}
