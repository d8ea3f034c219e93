package model

// Stats summarises how many tasks are active and completed.
type Stats struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	Completed        int     `json:"completed"`
	ActivePercent    float64 `json:"active_percent"`
	CompletedPercent float64 `json:"completed_percent"`
}

// ComputeStats counts active and completed tasks. An empty list yields zero
// percentages rather than NaN.
func ComputeStats(tasks []Task) Stats {
	var s Stats
	for _, t := range tasks {
		if t.IsActive() {
			s.Active++
		} else {
			s.Completed++
		}
	}
	s.Total = len(tasks)
	if s.Total == 0 {
		return s
	}
	s.ActivePercent = 100 * float64(s.Active) / float64(s.Total)
	s.CompletedPercent = 100 * float64(s.Completed) / float64(s.Total)
	return s
}
