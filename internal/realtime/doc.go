// Package realtime delivers forced-logout notices to connected browsers.
//
// Each websocket connection is registered under the session id it
// authenticated with. Publishing a forced logout for a session id fans the
// notice out to every connection of that session, on every device and tab.
// The channel is server-push only.
package realtime
