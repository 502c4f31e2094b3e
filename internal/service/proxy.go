// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/greenhttp"
	"github.com/z5labs/greenhttp/pkg/slogfield"
)

// proxy fetches the url given by the "url" query parameter and relays
// the upstream response.
type proxy struct {
	client  *greenhttp.Client
	timeout time.Duration
}

func (p *proxy) fetch(w greenhttp.ResponseWriter, r *http.Request) error {
	resp, err := p.client.Get(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		return err
	}
	return relay(w, resp)
}

func (p *proxy) fetchWithTimeout(w greenhttp.ResponseWriter, r *http.Request) error {
	resp, err := p.client.Get(
		r.Context(),
		r.URL.Query().Get("url"),
		greenhttp.Timeout(p.timeout),
	)
	if err != nil {
		return err
	}
	return relay(w, resp)
}

func relay(w greenhttp.ResponseWriter, resp *greenhttp.Response) error {
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode())
	_, err := w.Write(resp.Body())
	return err
}

// errorHandler maps upstream failures to gateway status codes.
func errorHandler(log *slog.Logger) greenhttp.ErrorHandler {
	return func(w greenhttp.ResponseWriter, r *http.Request, err error) {
		status := http.StatusInternalServerError
		var terr greenhttp.TransportError
		if errors.As(err, &terr) {
			status = http.StatusBadGateway
			if terr.Timeout() {
				status = http.StatusGatewayTimeout
			}
		}

		log.ErrorContext(
			r.Context(),
			"failed to proxy request",
			slogfield.URL(r.URL.Query().Get("url")),
			slogfield.StatusCode(status),
			slogfield.Error(err),
		)
		if w.Written() {
			return
		}
		http.Error(w, http.StatusText(status), status)
	}
}
