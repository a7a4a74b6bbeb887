package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/logging"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{vectorfs.ErrInvalidReaderPermission, http.StatusForbidden},
	{vectorfs.ErrInvalidWriterPermission, http.StatusForbidden},
	{vectorfs.ErrInvalidNodeActionPermission, http.StatusForbidden},
	{vectorfs.ErrInvalidProfileActionPermission, http.StatusForbidden},

	{vectorfs.ErrProfileNameNonExistent, http.StatusNotFound},
	{vectorfs.ErrNoEntryAtPath, http.StatusNotFound},
	{vectorfs.ErrNoSourceFileMapSaved, http.StatusNotFound},
	{vectorfs.ErrNoPermissionEntryAtPath, http.StatusNotFound},

	{vectorfs.ErrEntryAlreadyExists, http.StatusConflict},
	{vectorfs.ErrCannotOverwriteFolder, http.StatusConflict},
	{vectorfs.ErrCannotMoveFolderIntoItself, http.StatusConflict},

	{vectorfs.ErrPathDoesNotPointAtFolder, http.StatusBadRequest},
	{vectorfs.ErrPathDoesNotPointAtItem, http.StatusBadRequest},
	{vectorfs.ErrInvalidEntryName, http.StatusBadRequest},
	{vectorfs.ErrRootCannotBeModified, http.StatusBadRequest},
	{vectorfs.ErrEmbeddingModelTypeMismatch, http.StatusBadRequest},
	{vectorfs.ErrEmbeddingMissingInResource, http.StatusBadRequest},
	{vectorfs.ErrDataConversion, http.StatusBadRequest},
	{resource.ErrInvalidPathString, http.StatusBadRequest},
	{resource.ErrInvalidVRPath, http.StatusBadRequest},
}

// statusFor maps a vector fs error to an HTTP status.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// httpError converts err into an echo.HTTPError. Internal errors are logged
// and their detail is withheld from the client.
func (s *Server) httpError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			append(logging.ContextFields(c.Request().Context()),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err))...)
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}
