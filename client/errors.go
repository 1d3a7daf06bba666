package client

import "errors"

var (
	// ErrNoSession is returned when there is no refresh token to exchange.
	ErrNoSession = errors.New("no session")
	// ErrRefreshRejected means the server refused the refresh token. The
	// session is over.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrNetworkTimeout means the refresh did not complete in time.
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrRefreshFailed covers every other refresh failure.
	ErrRefreshFailed = errors.New("refresh failed")
)
