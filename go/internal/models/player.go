package models

// Player is one participant's record inside a session, keyed by the
// identity provider's player id.
type Player struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Answered  bool   `json:"answered"`
	JoinOrder int    `json:"joinOrder"`
}
