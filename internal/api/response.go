package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/fadedpez/wagerline/internal/types"
)

// Response is the envelope of every JSON reply
type Response struct {
	Status int    `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Render sets the HTTP status from the envelope
func (rsp Response) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, rsp.Status)
	return nil
}

func OK() Response {
	return Response{
		Status: http.StatusOK,
	}
}

func Error(msg string, status int) Response {
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return Response{
		Status: status,
		Error:  msg,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is required", err.Field()))
		case "numeric":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be a number", err.Field()))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be one of %s", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}

	return Response{
		Status: http.StatusBadRequest,
		Code:   string(types.ErrInvalidArgument),
		Error:  strings.Join(errMsgs, ", "),
	}
}

// FromError maps a domain error onto a reply. Client mistakes keep their
// message; transient failures ask the caller to try again.
func FromError(err error) Response {
	code := types.CodeOf(err)

	switch {
	case types.IsRetryable(err):
		return Response{Status: http.StatusServiceUnavailable, Code: string(code), Error: "try again"}
	case !types.IsClientError(err):
		return Response{Status: http.StatusInternalServerError, Code: string(types.ErrInternalError), Error: "internal error"}
	}

	var gameErr *types.GameError
	types.As(err, &gameErr)
	rsp := Response{Code: string(code), Error: gameErr.Message}
	switch code {
	case types.ErrAccountNotFound, types.ErrBetNotFound, types.ErrGameNotFound:
		rsp.Status = http.StatusNotFound
	case types.ErrInsufficientBalance, types.ErrRoundClosedForBetting:
		rsp.Status = http.StatusConflict
	default:
		rsp.Status = http.StatusBadRequest
	}
	return rsp
}
