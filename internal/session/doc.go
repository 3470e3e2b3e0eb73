// Package session manages conversation sessions and their turns.
// Each turn encodes a captured speech segment, gates misfires, transcribes the
// speech, asks the chat model for a reply with the session history as context
// and synthesizes the reply. Idle sessions are expired by a cleanup routine.
package session
