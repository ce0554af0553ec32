package httputil

import (
	"net/http"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
)

// WriteErr maps err onto a status code and failure envelope using its
// platform error code.
func WriteErr(w http.ResponseWriter, err error) {
	WriteError(w, perrors.StatusCode(err), perrors.GetErrorCode(err), err.Error())
}

// CheckMethod validates that the request method matches the expected method.
// If it doesn't match, it writes a 405 Method Not Allowed error and returns false.
func CheckMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, perrors.CodeValidation, "method not allowed")
		return false
	}
	return true
}
