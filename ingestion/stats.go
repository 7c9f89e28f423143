package ingestion

import "time"

// Stats accumulates counters over one ingestion run.
type Stats struct {
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	SkippedFiles   int       `json:"skipped_files"`
	FailedFiles    int       `json:"failed_files"`
	TotalChunks    int       `json:"total_chunks"`
	ArticlesFound  int       `json:"articles_found"`
	SectionsFound  []string  `json:"sections_found"`
	RetryCount     int       `json:"retry_count"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Finish stamps the end of the run.
func (s *Stats) Finish() {
	s.EndTime = time.Now()
}

// AddSection records a section label once, preserving first-seen order.
func (s *Stats) AddSection(name string) {
	if name == "" {
		return
	}
	for _, existing := range s.SectionsFound {
		if existing == name {
			return
		}
	}
	s.SectionsFound = append(s.SectionsFound, name)
}

// Duration is the wall-clock span of the run.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}
