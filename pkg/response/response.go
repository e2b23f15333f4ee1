package response

import (
	"errors"
	"net/http"

	appErr "bj-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

// statusBySentinel is checked in order; the first match wins.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{appErr.ErrInvalidNickname, http.StatusBadRequest},
	{appErr.ErrInvalidUserStatus, http.StatusBadRequest},
	{appErr.ErrInvalidWalletPayload, http.StatusBadRequest},
	{appErr.ErrUnknownCommand, http.StatusBadRequest},
	{appErr.ErrInvalidPassword, http.StatusUnauthorized},
	{appErr.ErrAdminNotFound, http.StatusUnauthorized},
	{appErr.ErrInvalidAdminPassword, http.StatusUnauthorized},
	{appErr.ErrUnauthorized, http.StatusUnauthorized},
	{appErr.ErrUserBanned, http.StatusForbidden},
	{appErr.ErrAdminDisabled, http.StatusForbidden},
	{appErr.ErrTableAccessDenied, http.StatusForbidden},
	{appErr.ErrUserNotFound, http.StatusNotFound},
	{appErr.ErrTableNotFound, http.StatusNotFound},
	{appErr.ErrIncidentNotFound, http.StatusNotFound},
	{appErr.ErrNicknameTaken, http.StatusConflict},
	{appErr.ErrIncidentResolved, http.StatusConflict},
	{appErr.ErrAlreadyInQueue, http.StatusConflict},
	{appErr.ErrTableClosed, http.StatusGone},
	{appErr.ErrTooManyAttempts, http.StatusTooManyRequests},
	{appErr.ErrQueueProcessing, http.StatusTooManyRequests},
	{appErr.ErrTableFaulted, http.StatusServiceUnavailable},
	{appErr.ErrLedgerUnavailable, http.StatusServiceUnavailable},
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// Fail writes err with the status of the first sentinel it wraps. Anything
// unknown is a 500.
func Fail(c *gin.Context, err error) {
	Error(c, StatusOf(err), err.Error())
}

func StatusOf(err error) int {
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
