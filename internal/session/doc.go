// Package session binds a browser to a user between requests.
//
// A session is an HS256-signed JWT carrying the user id and display name,
// stored in an HttpOnly cookie. The websocket endpoint reads the same cookie
// to decide whether a connection may toggle cells.
package session
