// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package greenhttp

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/z5labs/greenhttp/httpclient"
)

// Response is the immutable result of a completed HTTP call.
type Response struct {
	code   int
	header http.Header
	body   []byte

	jsonOnce sync.Once
	jsonVal  any
	jsonErr  error
}

// NewResponse adapts res. The status code, headers and body are copied
// as is; nothing is decoded until asked for.
func NewResponse(res *httpclient.Result) *Response {
	return &Response{
		code:   res.Code,
		header: res.Header,
		body:   res.Body,
	}
}

// StatusCode is the HTTP status code of the response.
func (r *Response) StatusCode() int {
	return r.code
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	return r.header
}

// Body returns the raw response body.
func (r *Response) Body() []byte {
	return r.body
}

// Text returns the response body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// JSON decodes the body into a generic value; objects decode to
// map[string]any. The result of the first call is reused by later calls.
func (r *Response) JSON() (any, error) {
	r.jsonOnce.Do(func() {
		var v any
		err := json.Unmarshal(r.body, &v)
		if err != nil {
			r.jsonErr = DecodeError{Cause: err}
			return
		}
		r.jsonVal = v
	})
	return r.jsonVal, r.jsonErr
}

// DecodeJSON decodes the body into v.
func (r *Response) DecodeJSON(v any) error {
	err := json.Unmarshal(r.body, v)
	if err != nil {
		return DecodeError{Cause: err}
	}
	return nil
}
