// Package api is the HTTP surface of an authgate server: account, token and
// API key endpoints mounted on a net/http ServeMux.
//
// Credential endpoints are charged against the IP budget without requiring a
// token; /auth/me and /auth/api-key require a bearer access token and are
// charged against the API key budget when X-API-Key is present.
package api
