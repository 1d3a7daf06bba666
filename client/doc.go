// Package client keeps a caller's token pair fresh.
//
// A [Session] holds the current pair. A [Coordinator] refreshes it when the
// server rejects an access token; concurrent callers that observe the same
// rejection share a single refresh call and its result. [Transport] wires
// the coordinator into net/http: it attaches the bearer token and replays a
// request at most once after a refresh.
//
// A failed refresh ends the session: the stored pair is cleared and the
// OnLogout hook fires once for the whole group of waiters.
package client
