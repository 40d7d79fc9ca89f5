// Package gateway exposes a coordination.Hub over websockets and a small
// read-only admin API.
//
// Identity is never read from client frames. The authenticating proxy in
// front of collabd injects trusted headers (X-User-ID and friends by
// default); upgrades without a user id are rejected with 401. Each accepted
// connection gets a UUID connection id that the core uses to exclude the
// sender from its own notifications.
//
// Clients send [ClientFrame] commands and receive [ServerFrame]s. Core
// notifications are fanned out to the members of the session group
// ("collaboration_{entityType}_{entityId}"). A failed command is answered
// with a SystemNotification to the caller only and never closes the
// connection. Every connection has a bounded send queue; a client that
// falls behind is disconnected, which runs the normal disconnect cleanup.
//
// Routes:
//
//	GET /ws                             websocket endpoint
//	GET /healthz                        liveness and counts
//	GET /api/v1/sessions                session summaries
//	GET /api/v1/sessions/{type}/{id}    one session snapshot
package gateway
