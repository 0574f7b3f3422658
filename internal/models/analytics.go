package models

// TeamAnalytics is the aggregate market and result data for one team in a pool.
type TeamAnalytics struct {
	TeamID          string  `json:"team_id"`
	SchoolName      string  `json:"school_name"`
	Seed            int     `json:"seed"`
	Region          string  `json:"region"`
	Wins            int     `json:"wins"`
	TotalInvestment float64 `json:"total_investment"`
	Returns         float64 `json:"returns"`
}
