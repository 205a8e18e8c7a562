// Package server exposes the capture protocol over HTTP.
//
// Routes:
//
//	GET  /capture                       new session id (text/plain)
//	POST /capture/{id}/frame/{n}        store frame n
//	POST /capture/{id}/render           start a render, optional form field fps
//	GET  /capture/{id}/render-progress  integer percent, -1 after a failure
//	GET  /capture/{id}/canvas.mp4       the rendered video
//	GET  /healthz                       JSON readiness report
//
// Every route may be mounted below a prefix. Each response carries an
// X-Request-ID header that is also attached to the request's log lines.
package server
