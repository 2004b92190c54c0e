package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumPlayers   int           // Players to register
	NumPrix      int           // Prix to generate
	FieldSize    int           // Participants per prix
	UseRaces     bool          // Submit race finishes instead of placements
	TopN         int           // Leaderboard entries to fetch
	Workers      int           // Concurrent HTTP workers
	Seed         uint64        // Generator seed, 0 picks one
	Timeout      time.Duration // HTTP request timeout
	SettleWait   time.Duration // Upper bound on waiting for the queue to drain
	PollInterval time.Duration // Stats poll interval while waiting
	VerifyReplay bool          // Recalculate afterwards and expect an identical leaderboard
	OutputFile   string        // Output file for generated prix
	Verbose      bool          // Enable verbose logging
}

// Player is a registration request.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Placement is one finishing position.
type Placement struct {
	PlayerID string `json:"player_id"`
	Rank     int    `json:"rank"`
}

// Prix is a submission sent to POST /prix.
type Prix struct {
	ID         string           `json:"id"`
	PlayedAt   time.Time        `json:"played_at"`
	Placements []Placement      `json:"placements,omitempty"`
	Races      []map[string]int `json:"races,omitempty"`
}

// Participants returns the player ids in the prix.
func (p Prix) Participants() []string {
	if len(p.Placements) > 0 {
		ids := make([]string, len(p.Placements))
		for i, pl := range p.Placements {
			ids[i] = pl.PlayerID
		}
		return ids
	}
	if len(p.Races) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.Races[0]))
	for id := range p.Races[0] {
		ids = append(ids, id)
	}
	return ids
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Rating   int    `json:"rating"`
}

// AckResponse represents the response from prix submission.
type AckResponse struct {
	Status    string `json:"status"`
	PrixID    string `json:"prix_id"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	PlayersRegistered  int
	PrixGenerated      int
	PrixSubmitted      int
	PrixAccepted       int
	PrixDuplicate      int
	PrixFailed         int
	RanksRetrieved     int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
