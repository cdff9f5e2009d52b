// Package httputil provides retry policies for package registry clients.
//
// # Retry
//
// [Retry] and [RetryWithBackoff] bound the number of attempts and back off
// exponentially. They are used for auxiliary lookups where giving up is
// acceptable (repository metadata, advisory feeds).
//
// [RetryForever] implements the registry fault policy: transport failures
// (connection errors, timeouts, 5xx) are retried indefinitely with a fixed
// [TransportRetryDelay] pause. Only context cancellation ends the loop,
// which in practice is bounded by the work queue's visibility window.
//
// Only errors wrapped with [Retryable] are retried:
//
//	err := httputil.RetryForever(ctx, httputil.TransportRetryDelay, nil, func() error {
//	    resp, err := http.Get(url)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
package httputil
