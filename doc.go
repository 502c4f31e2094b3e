// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package greenhttp lets HTTP handlers running on a single-threaded event
// loop make outbound HTTP calls with synchronous-looking code.
//
// A handler wrapped with [Asynchronous] runs inside a task. Calling [Get],
// [Post], [Put], [Delete] or [Fetch] with the request's context suspends
// the task while the call is in flight; the loop keeps serving other
// tasks, and the handler continues with exactly one [Response] or error
// once the call completes.
//
//	http.Handle("/", greenhttp.Asynchronous(func(w greenhttp.ResponseWriter, r *http.Request) error {
//		resp, err := greenhttp.Get(r.Context(), "http://example.com", greenhttp.Timeout(time.Second))
//		if err != nil {
//			return err
//		}
//		_, err = w.Write(resp.Body())
//		return err
//	}))
//
// Suspending calls made with a context that does not belong to a task fail
// with [ContextMisuseError].
//
// The package-level functions use a [Client] bound to the loop set with
// [SetEventLoop], which defaults to [loop.Default].
package greenhttp
