// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package greenhttp

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/z5labs/greenhttp/httpclient"
	"github.com/z5labs/greenhttp/loop"
)

var defaultClient atomic.Pointer[Client]

// Default returns the Client used by the package-level functions.
func Default() *Client {
	if c := defaultClient.Load(); c != nil {
		return c
	}
	defaultClient.CompareAndSwap(nil, New(WithLoop(loop.Default())))
	return defaultClient.Load()
}

// SetEventLoop binds the package-level functions to l. A nil l selects
// [loop.Default]. It is meant to be called once, at startup.
func SetEventLoop(l *loop.Loop) {
	if l == nil {
		l = loop.Default()
	}
	defaultClient.Store(New(WithLoop(l)))
}

// EventLoop returns the loop the package-level functions are bound to.
func EventLoop() *loop.Loop {
	return Default().Loop()
}

// Asynchronous calls [Client.Asynchronous] on the default Client.
func Asynchronous(h HandlerFunc) http.Handler {
	return Default().Asynchronous(h)
}

// Fetch calls [Client.Fetch] on the default Client.
func Fetch(ctx context.Context, req *httpclient.Request) (*Response, error) {
	return Default().Fetch(ctx, req)
}

// Do calls [Client.Do] on the default Client.
func Do(ctx context.Context, method, url string, data []byte, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, method, url, data, opts...)
}

// Get calls [Client.Get] on the default Client.
func Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return Default().Get(ctx, url, opts...)
}

// Post calls [Client.Post] on the default Client.
func Post(ctx context.Context, url string, data []byte, opts ...RequestOption) (*Response, error) {
	return Default().Post(ctx, url, data, opts...)
}

// Put calls [Client.Put] on the default Client.
func Put(ctx context.Context, url string, data []byte, opts ...RequestOption) (*Response, error) {
	return Default().Put(ctx, url, data, opts...)
}

// Delete calls [Client.Delete] on the default Client.
func Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return Default().Delete(ctx, url, opts...)
}
