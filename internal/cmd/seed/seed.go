// Package seed creates a demo match with a few overs of play so a fresh
// database has something to look at.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/engine"
	entrypoint "github.com/louisbranch/crease/internal/platform/cmd"
	"github.com/louisbranch/crease/internal/scoring"
	"github.com/louisbranch/crease/internal/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath    string `env:"CREASE_DB_PATH" envDefault:"crease.db"`
	MatchName string `env:"CREASE_SEED_MATCH_NAME" envDefault:"Demo Match"`
	Overs     int    `env:"CREASE_SEED_OVERS" envDefault:"2"`
	Organizer string `env:"CREASE_SEED_ORGANIZER" envDefault:"seed-organizer"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.MatchName, "match-name", cfg.MatchName, "name for the demo match")
	fs.IntVar(&cfg.Overs, "overs", cfg.Overs, "overs of demo play to score")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the demo match and scores the requested overs.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		svc := scoring.NewService(store, audit.NewEmitter(store), nil)
		matchID, err := seedMatch(ctx, svc, cfg)
		if err != nil {
			return err
		}
		log.Printf("seeded match %s (%s)", matchID, cfg.MatchName)
		return nil
	})
}

// a repeating run pattern that rotates strike and clears each over without
// needing wicket or bowler bookkeeping beyond the forced selections.
var demoRuns = [6]int{1, 0, 4, 2, 6, 1}

func seedMatch(ctx context.Context, svc *scoring.Service, cfg Config) (string, error) {
	rules := engine.DefaultRules(20)
	rules.BowlerMayContinue = false

	match, err := svc.CreateMatch(ctx, cfg.Organizer, scoring.CreateMatchParams{
		Name:        cfg.MatchName,
		TeamAID:     "home",
		TeamBID:     "visitors",
		Rules:       rules,
		TeamARoster: demoRoster("home"),
		TeamBRoster: demoRoster("visitors"),
	})
	if err != nil {
		return "", fmt.Errorf("create match: %w", err)
	}

	key := 0
	guard := func() scoring.Guard {
		key++
		return scoring.Guard{
			ActorID:        cfg.Organizer,
			IdempotencyKey: fmt.Sprintf("seed-%s-%d", match.ID, key),
		}
	}

	if _, err := svc.StartInnings(ctx, match.ID, guard(), scoring.StartInningsParams{
		BattingTeamID: "home",
		StrikerID:     "home-1",
		NonStrikerID:  "home-2",
		BowlerID:      "visitors-1",
	}); err != nil {
		return "", fmt.Errorf("start innings: %w", err)
	}

	for over := 0; over < cfg.Overs; over++ {
		for ball := 0; ball < 6; ball++ {
			if _, err := svc.RecordBall(ctx, match.ID, guard(), demoRuns[ball]); err != nil {
				return "", fmt.Errorf("over %d ball %d: %w", over+1, ball+1, err)
			}
		}
		bowler := fmt.Sprintf("visitors-%d", over%2+2)
		if _, err := svc.SelectBowler(ctx, match.ID, guard(), bowler); err != nil {
			return "", fmt.Errorf("select bowler for over %d: %w", over+2, err)
		}
	}
	return match.ID, nil
}

func demoRoster(team string) []string {
	roster := make([]string, 0, 11)
	for i := 1; i <= 11; i++ {
		roster = append(roster, fmt.Sprintf("%s-%d", team, i))
	}
	return roster
}
