// Package token issues and verifies the signed bearer tokens carried by a session:
// a short-lived access token and a long-lived refresh token per session.
//
// Verification never returns an error value for a bad token. It returns a
// [Failure] kind so callers can branch on the outcome without inspecting errors.
package token
