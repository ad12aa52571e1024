package server

import "github.com/larkela/chunkline/internal/tracker"

// sessionSurface relays tracker collaborator calls onto the event hub.
// Calls never block; the hub drops events for slow subscribers.
type sessionSurface struct {
	hub       *Hub
	sessionID string
}

func (f sessionSurface) RequestConfirmation(req tracker.ConfirmationRequest) {
	f.hub.Publish(Event{Type: eventConfirmationRequested, SessionID: f.sessionID, Payload: req})
}

func (f sessionSurface) ShowAcknowledgment(message string) {
	f.hub.Publish(Event{
		Type:      eventAcknowledgment,
		SessionID: f.sessionID,
		Payload:   map[string]string{"message": message},
	})
}

func (f sessionSurface) PausePlayback() {
	f.hub.Publish(Event{Type: eventPlaybackPause, SessionID: f.sessionID})
}

func (f sessionSurface) StateChanged(snap tracker.Snapshot) {
	f.hub.Publish(Event{Type: eventStateChanged, SessionID: f.sessionID, Payload: snap})
}

func (f sessionSurface) ProgressChanged(update tracker.ProgressUpdate) {
	f.hub.Publish(Event{Type: eventProgressChanged, SessionID: f.sessionID, Payload: update})
}
