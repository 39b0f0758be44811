package models

import "time"

// LotteryResult summarises one draw at registration closure.
type LotteryResult struct {
	EventID          int64     `json:"event_id"`
	DrawnAt          time.Time `json:"drawn_at"`
	TotalPlaces      int       `json:"total_places"`
	SpeakerCount     int       `json:"speaker_count"`
	GuestCount       int       `json:"guest_count"`
	PlacesAvailable  int       `json:"places_available"`
	Winners          []int64   `json:"winners"`
	Waitlisted       []int64   `json:"waitlisted"`
	DroppedSpeakers  []int64   `json:"dropped_speakers,omitempty"`
	PromotedLeftover int       `json:"promoted_leftover"`
}
