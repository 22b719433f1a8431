// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/log"
)

var logger = log.WithContext("pkg", "api")

// CallerHeader carries the address of the authenticated caller, set by the fronting proxy.
const CallerHeader = "X-Caller"

// DefaultTake is the page size when the take query is absent.
const DefaultTake = 100

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError create an error with http status code.
func HTTPError(cause error, status int) error {
	return &httpError{
		cause:  cause,
		status: status,
	}
}

// BadRequest convenience method to create http bad request error.
func BadRequest(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusBadRequest,
	}
}

// Forbidden convenience method to create http forbidden error.
func Forbidden(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusForbidden,
	}
}

// StatusOf maps an engine error to the status responded for it.
func StatusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case burn.IsValidation(err):
		return http.StatusBadRequest
	case burn.IsStopped(err):
		return http.StatusServiceUnavailable
	case burn.IsExternalCall(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandlerFunc like http.HandlerFunc, bu it returns an error.
// The status responded for the error is chosen by StatusOf.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc convert HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		status := StatusOf(err)
		if he, ok := err.(*httpError); ok && he.cause == nil {
			w.WriteHeader(status)
			return
		}
		if status == http.StatusInternalServerError {
			logger.Error("request failed", "uri", r.URL.String(), "err", err)
		}
		http.Error(w, err.Error(), status)
	}
}

// content types
const (
	JSONContentType = "application/json; charset=utf-8"
)

// ParseJSON parse a JSON object using strict mode.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON response an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M shortcut for type map[string]any.
type M map[string]any

// Caller returns the address in the caller header.
func Caller(r *http.Request) (burn.Address, error) {
	v := r.Header.Get(CallerHeader)
	if v == "" {
		return burn.Address{}, HTTPError(errors.New("missing caller"), http.StatusUnauthorized)
	}
	addr, err := burn.ParseAddress(v)
	if err != nil {
		return burn.Address{}, BadRequest(errors.WithMessage(err, "caller"))
	}
	return *addr, nil
}

// OptionalCaller is like Caller but returns the zero address when the header is absent.
func OptionalCaller(r *http.Request) (burn.Address, error) {
	if r.Header.Get(CallerHeader) == "" {
		return burn.Address{}, nil
	}
	return Caller(r)
}

// ParseAddress parses an optional address, as used for page cursors.
func ParseAddress(s string) (*burn.Address, error) {
	if s == "" {
		return nil, nil
	}
	addr, err := burn.ParseAddress(s)
	if err != nil {
		return nil, BadRequest(err)
	}
	return addr, nil
}

// ParseUint parses an optional unsigned integer.
func ParseUint(s string) (*uint64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, BadRequest(err)
	}
	return &v, nil
}

// ParseTake parses the page size, bounded by max.
func ParseTake(s string, max int) (int, error) {
	if s == "" {
		return min(DefaultTake, max), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, BadRequest(errors.New("invalid take"))
	}
	if v > max {
		return 0, BadRequest(errors.Errorf("take exceeds the limit of %d", max))
	}
	return v, nil
}
