package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/gpionode/internal/pins"
)

var codeStatus = map[pins.Code]int{
	pins.CodeInvalidFunction:            http.StatusBadRequest,
	pins.CodeIllegalForFunction:         http.StatusBadRequest,
	pins.CodeOutOfRange:                 http.StatusBadRequest,
	pins.CodeUnknownPin:                 http.StatusNotFound,
	pins.CodeConflictingBusAssignment:   http.StatusConflict,
	pins.CodeModeConflict:               http.StatusConflict,
	pins.CodeNoHardwareChannelAvailable: http.StatusConflict,
	pins.CodeHardwareFault:              http.StatusServiceUnavailable,
}

// mapPinError maps domain errors to HTTP errors. The taxonomy code is
// carried as an error detail at location "code".
func mapPinError(err error) error {
	var pinErr *pins.Error
	if !errors.As(err, &pinErr) {
		return huma.Error500InternalServerError("internal server error", err)
	}

	status, ok := codeStatus[pinErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := pinErr.Message
	if msg == "" {
		msg = string(pinErr.Code)
	}
	return huma.NewError(status, msg, &huma.ErrorDetail{
		Message:  pinErr.Error(),
		Location: "code",
		Value:    string(pinErr.Code),
	})
}
