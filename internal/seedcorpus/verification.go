package seedcorpus

import (
	"fmt"
	"log"
	"sort"
)

// verifyResults cross-checks player rollups and search output against
// the records that were submitted.
func verifyResults(config *Config, records []Record, playerStats []PlayerStat, search SearchResponse) error {
	log.Println("verifying results")

	if len(playerStats) == 0 {
		return fmt.Errorf("no player stats to verify")
	}

	if err := verifyStatConsistency(records, playerStats); err != nil {
		log.Printf("player stat consistency warning: %v", err)
	} else {
		log.Println("player stat consistency verified")
	}

	if err := verifySearchOrdering(search); err != nil {
		log.Printf("search ordering warning: %v", err)
	} else {
		log.Println("search ordering verified")
	}

	displayTopPlayers(playerStats, config.Verbose)

	log.Println("result verification completed")
	return nil
}

// verifyStatConsistency checks that retrieved rollups never report more
// games than were submitted for the player, and that W+D+L adds up.
func verifyStatConsistency(records []Record, playerStats []PlayerStat) error {
	submitted := make(map[string]int)
	for _, r := range records {
		submitted[r.White]++
		submitted[r.Black]++
	}

	for _, stat := range playerStats {
		if stat.TotalGames > submitted[stat.PlayerName] {
			return fmt.Errorf("player %s reports %d games but only %d were submitted",
				stat.PlayerName, stat.TotalGames, submitted[stat.PlayerName])
		}
		if decided := stat.Wins + stat.Draws + stat.Losses; decided > stat.TotalGames {
			return fmt.Errorf("player %s reports %d decided results across %d games",
				stat.PlayerName, decided, stat.TotalGames)
		}
	}
	return nil
}

// verifySearchOrdering checks that hits arrive in descending score order.
func verifySearchOrdering(search SearchResponse) error {
	if len(search.Hits) == 0 {
		return fmt.Errorf("search returned no hits")
	}
	for i := 1; i < len(search.Hits); i++ {
		if search.Hits[i].Score > search.Hits[i-1].Score {
			return fmt.Errorf("hits not sorted: entry %d scores above entry %d", i, i-1)
		}
	}
	return nil
}

// displayTopPlayers shows the busiest players from the retrieved stats.
func displayTopPlayers(playerStats []PlayerStat, verbose bool) {
	sorted := make([]PlayerStat, len(playerStats))
	copy(sorted, playerStats)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalGames > sorted[j].TotalGames
	})

	topN := 10
	if len(sorted) < topN {
		topN = len(sorted)
	}

	log.Printf("top %d players by game count:", topN)
	for i := 0; i < topN; i++ {
		stat := sorted[i]
		log.Printf("   %d. %s - games: %d (W/D/L %d/%d/%d)",
			i+1, stat.PlayerName, stat.TotalGames, stat.Wins, stat.Draws, stat.Losses)
	}

	if verbose {
		totalGames := 0
		for _, stat := range sorted {
			totalGames += stat.TotalGames
		}
		log.Printf(`stat totals:
   Players: %d
   Game slots: %d
`, len(sorted), totalGames)
	}
}
