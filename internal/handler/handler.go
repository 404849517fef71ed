// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/linkpeek/linkpeek/internal/handler/dto"
)

// Error codes returned in dto.ErrorResponse.Code.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeLinkNotFound       = "LINK_NOT_FOUND"
	CodeInvalidDestination = "INVALID_DESTINATION"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

var errEmptyBody = errors.New("request body is empty")

var validate = validator.New()

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, dto.ErrorResponse{Error: "resource not found", Code: CodeNotFound})
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, dto.ErrorResponse{Error: "method not allowed", Code: CodeMethodNotAllowed})
}

// decodeJSON decodes a single JSON object from the request body into dst
// and validates its struct tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, body dto.ErrorResponse) {
	w.Header().Set("Cache-Control", "private, max-age=0")
	writeJSON(w, status, body)
}

// getClientIP returns the host part of RemoteAddr. Proxy headers are only
// honoured through middleware.ProxyHeaders, which rewrites RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
