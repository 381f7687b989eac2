// SPDX-License-Identifier: MIT

package model

// Event bus topics published by the session manager. Payload is always a
// Session snapshot taken at transition time.
const (
	TopicSessionCreated  = "session.created"
	TopicSessionExtended = "session.extended"
	TopicSessionExpired  = "session.expired"
	TopicSessionClosed   = "session.closed"
)
