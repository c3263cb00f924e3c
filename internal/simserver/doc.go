// Package simserver is an in-process stand-in for the web application's
// categorize, account snapshot and bank-sync endpoints.
//
// The categorize endpoint sits behind a token bucket (golang.org/x/time/rate)
// that charges one token per requested transaction. Requests the bucket
// cannot cover are rejected with 429 and the same hints the real backend
// sends: a Retry-After header, a resetIn metric and a human-readable message.
// Successful responses carry the remaining quota. This lets the worker's
// adaptive pacing be exercised end to end without a real backend.
//
// # Usage
//
//	srv := simserver.New(
//	    simserver.WithRate(120, 20),
//	    simserver.WithBacklog(400),
//	    simserver.WithAccounts(3),
//	)
//	httpSrv := httptest.NewServer(srv.Handler())
//
// # Thread Safety
//
// Server is safe for concurrent use; every handler takes the server lock
// for its bookkeeping.
package simserver
