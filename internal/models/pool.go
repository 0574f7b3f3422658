package models

// Pool is a Calcutta betting pool as returned by the API.
type Pool struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TournamentName string  `json:"tournament_name"`
	Year           int     `json:"year"`
	Status         string  `json:"status"`
	EntryCount     int     `json:"entry_count"`
	TotalPot       float64 `json:"total_pot"`
}

// PoolStanding is one entry's position in a pool.
type PoolStanding struct {
	EntryID        string   `json:"entry_id"`
	EntryName      string   `json:"entry_name"`
	OwnerName      string   `json:"owner_name"`
	FinishPosition int      `json:"finish_position"`
	Points         float64  `json:"points"`
	Investment     float64  `json:"investment"`
	Payout         *float64 `json:"payout"`
	ExpectedPayout *float64 `json:"expected_payout"`
	PInMoney       *float64 `json:"p_in_money"`
}

// PoolDetail is a pool with its standings.
type PoolDetail struct {
	Pool
	Standings []PoolStanding `json:"standings"`
}
