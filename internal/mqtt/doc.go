// Package mqtt mirrors turn lifecycle events onto an MQTT broker so
// dashboards and home automation can watch the agent work.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. Events are
// published as JSON to helion/<device>/turns. A retained "online"
// birth message goes to helion/<device>/availability on every
// (re-)connect, and a will message flips it to "offline" when the
// connection drops unexpectedly.
package mqtt
