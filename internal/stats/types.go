package stats

// HistoryStats aggregates a set of session snapshots.
type HistoryStats struct {
	Sessions       int
	ByStatus       map[string]int // session status -> count
	Files          int
	CompletedFiles int
	Tokens         int64
	AvgTokens      float64 // per session with any tokens
	SuccessRate    float64 // 0-1, completed / finished
	Languages      []LanguageCount
	BuildFailures  int
}

// LanguageCount is the number of generated files in one language.
type LanguageCount struct {
	Language string
	Files    int
}
