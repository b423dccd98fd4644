// Package api exposes scan jobs over HTTP.
//
// The API is deliberately small: submit a scan, poll it, list and manage
// jobs. Submission is asynchronous; the response carries a scan id and
// the pipeline runs in a background goroutine detached from the request.
//
// Design decision: routing uses net/http's ServeMux method and wildcard
// patterns rather than a router dependency. Five routes do not justify
// one, and the standard mux's patterns cover everything the API needs.
package api
