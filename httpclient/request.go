// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// Request describes a single HTTP call. Any method token is accepted,
// including nonstandard ones.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// ConnectTimeout bounds establishing the connection. Zero means no
	// per-request bound.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the whole call, including reading the body.
	// Zero means no per-request bound.
	RequestTimeout time.Duration
}

// Result is the outcome of a Request. When Err is a [StatusError] the
// status, headers and body of the response are still populated.
type Result struct {
	Request     *Request
	Code        int
	Header      http.Header
	Body        []byte
	Err         error
	RequestTime time.Duration
}

// HasResponse reports whether the server answered the request.
func (r *Result) HasResponse() bool {
	return r != nil && r.Code != 0
}

// StatusError is returned for responses whose status code is not 2xx.
type StatusError struct {
	Code int
}

// Error implements the [error] interface.
func (e StatusError) Error() string {
	return fmt.Sprintf("httpclient: %d %s", e.Code, http.StatusText(e.Code))
}
