// Package session tracks chat sessions.
//
// A Registry hands out session IDs and resolves them on later requests. IDs
// unknown to the process are looked up in the checkpoint backend so sessions
// survive a restart when a durable store is configured. Each Session carries
// a turn lock: only one message or approval stream may run at a time.
package session
