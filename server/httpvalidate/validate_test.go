// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpvalidate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandler_ServeHTTP(t *testing.T) {
	t.Run("will not run base handler", func(t *testing.T) {
		t.Run("if any validator fails", func(t *testing.T) {
			h := Request(
				ok(),
				ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
					w.WriteHeader(http.StatusInternalServerError)
					return false
				}),
			)

			w := serve(h, http.MethodGet, "http://example.com")
			assert.Equal(t, http.StatusInternalServerError, w.Code)
		})
	})

	t.Run("will run base handler", func(t *testing.T) {
		t.Run("if all validators pass", func(t *testing.T) {
			h := Request(
				ok(),
				ValidatorFunc(func(w http.ResponseWriter, r *http.Request) bool {
					return true
				}),
			)

			w := serve(h, http.MethodGet, "http://example.com")
			assert.Equal(t, http.StatusAccepted, w.Code)
		})
	})
}

func TestForMethods(t *testing.T) {
	t.Run("will respond with 405 and the allowed methods", func(t *testing.T) {
		t.Run("if the method is not one of the given", func(t *testing.T) {
			h := Request(ok(), ForMethods(http.MethodGet, http.MethodHead))

			w := serve(h, http.MethodPost, "http://example.com")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
		})
	})

	t.Run("will pass", func(t *testing.T) {
		t.Run("if the method is one of the given", func(t *testing.T) {
			h := Request(ok(), ForMethods(http.MethodGet))

			w := serve(h, http.MethodGet, "http://example.com")
			assert.Equal(t, http.StatusAccepted, w.Code)
		})
	})
}

func TestMinimumParams(t *testing.T) {
	testCases := []struct {
		Name   string
		Target string
		Code   int
	}{
		{Name: "missing", Target: "http://example.com/proxy", Code: http.StatusBadRequest},
		{Name: "empty", Target: "http://example.com/proxy?url=", Code: http.StatusBadRequest},
		{Name: "present", Target: "http://example.com/proxy?url=x&extra=1", Code: http.StatusAccepted},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			h := Request(ok(), MinimumParams("url"))

			w := serve(h, http.MethodGet, testCase.Target)
			assert.Equal(t, testCase.Code, w.Code)
		})
	}
}

func TestAbsoluteURLParam(t *testing.T) {
	testCases := []struct {
		Name   string
		Target string
		Code   int
	}{
		{Name: "relative", Target: "http://example.com/proxy?url=/path", Code: http.StatusBadRequest},
		{Name: "non http scheme", Target: "http://example.com/proxy?url=ftp://host/file", Code: http.StatusBadRequest},
		{Name: "http", Target: "http://example.com/proxy?url=http://upstream:8080/a", Code: http.StatusAccepted},
		{Name: "https", Target: "http://example.com/proxy?url=https://upstream/a", Code: http.StatusAccepted},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			h := Request(ok(), AbsoluteURLParam("url"))

			w := serve(h, http.MethodGet, testCase.Target)
			assert.Equal(t, testCase.Code, w.Code)
		})
	}
}
