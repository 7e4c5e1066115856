// Package server exposes the grid over HTTP.
//
// Routes:
//   - GET /login, /callback, /logout: identity provider login and session cookie
//   - GET /ws: observer websocket (select_cell in, update_cell and error out)
//   - GET /api/grid: the grid as seen by the session user
//   - GET /search_owner?cell_number=n: display name of a cell's owner
//   - GET /health: store connection state
package server
