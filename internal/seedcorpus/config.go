package seedcorpus

import "time"

// Config holds configuration for a corpus seeding run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumRecords int           // Number of game records to generate
	NumPlayers int           // Size of the synthetic player pool
	BatchSize  int           // Records per /batches call; 1 uses /records
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for generated records
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Record mirrors the POST /records payload.
type Record struct {
	Source   string `json:"source"`
	Event    string `json:"event"`
	Site     string `json:"site"`
	Date     string `json:"date"`
	Round    string `json:"round"`
	White    string `json:"white"`
	Black    string `json:"black"`
	Result   string `json:"result"`
	WhiteElo int    `json:"white_elo"`
	BlackElo int    `json:"black_elo"`
	ECO      string `json:"eco"`
	MoveText string `json:"move_text"`
}

// AckResponse represents the response from record submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// BatchSummary mirrors the POST /batches response.
type BatchSummary struct {
	Received         int      `json:"received"`
	Succeeded        int      `json:"succeeded"`
	Duplicates       int      `json:"duplicates"`
	Malformed        int      `json:"malformed"`
	PendingEmbedding int      `json:"pending_embedding"`
	Players          []string `json:"players"`
}

// PlayerStat mirrors the GET /players/{name}/stats response.
type PlayerStat struct {
	PlayerName string `json:"player_name"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Draws      int    `json:"draws"`
	Losses     int    `json:"losses"`
}

// SearchHit mirrors one entry of the POST /search response.
type SearchHit struct {
	Game struct {
		ID     string `json:"id"`
		White  string `json:"white"`
		Black  string `json:"black"`
		Result string `json:"result"`
		ECO    string `json:"eco"`
	} `json:"game"`
	Score    float64 `json:"score"`
	Semantic bool    `json:"semantic"`
}

// SearchResponse mirrors the POST /search response.
type SearchResponse struct {
	Hits            []SearchHit `json:"hits"`
	NextCursor      string      `json:"next_cursor"`
	SemanticSkipped bool        `json:"semantic_skipped"`
}

// Stats holds run statistics.
type Stats struct {
	RecordsGenerated int
	RecordsSubmitted int
	RecordsAccepted  int
	RecordsDuplicate int
	RecordsFailed    int
	StatsRetrieved   int
	SearchHits       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
