// Package http provides HTTP handlers and middleware for the screening console API.
//
// The router exposes the following endpoints:
//   - POST /sessions: signs in. Body: {"email","password"}. Response:
//     {"token","expires_at","principal"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: signs out the session presented in the
//     Authorization header or cookie and clears the cookie.
//   - GET /events[?date=YYYY-MM-DD], POST /events, GET|PUT|DELETE /events/{id},
//     POST /events/{id}/move: event management. Saves that complete a drug
//     test report the supply deduction in "deduction" and any ledger failure
//     in "warning".
//   - GET /calendar?mode=month|week&date=, GET /calendar/navigate?direction=,
//     GET /calendar/time-options, GET /calendar/new-event?date=: grid views
//     and form helpers.
//   - GET /calendar/calendar.ics, POST /calendar/import: iCalendar export and import.
//   - GET /inventory?q=&category=&sort=&desc=, POST /inventory,
//     GET /inventory/categories, GET|PUT|DELETE /inventory/{id},
//     PUT /inventory/{id}/quantity: supply inventory.
//   - GET /notifications, POST /notifications/read-all,
//     POST /notifications/{id}/read, DELETE /notifications/{id}: notification log.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
