// Package auth verifies bearer tokens for the scan API.
//
// Tokens are JWTs. The verifier extracts the subject claim as the owner
// identity used for job scoping. Verification keys resolved by key id
// are held in a TTL cache so a burst of requests does not hammer the
// key source.
package auth
