// Command resolve is an operator tool for a single game: seed it from a JSON
// file, resolve its turn once the deadline has passed, force the turn as the
// creator, or mint a bearer token for a user.
//
// Usage:
//
//	go run ./cmd/resolve -seed game.json
//	go run ./cmd/resolve -game <id>
//	go run ./cmd/resolve -game <id> -force -user <creator-id>
//	go run ./cmd/resolve -token -user <user-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/auth"
	"github.com/freeeve/machiavelli/internal/config"
	"github.com/freeeve/machiavelli/internal/logger"
	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	redisrepo "github.com/freeeve/machiavelli/internal/repository/redis"
	"github.com/freeeve/machiavelli/internal/repository/store"
	"github.com/freeeve/machiavelli/internal/service"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

const startYear = 1454

// seedFile is the JSON layout accepted by -seed.
type seedFile struct {
	Game    machiavelli.Game     `json:"game"`
	Players []machiavelli.Player `json:"players"`
}

func main() {
	gameID := flag.String("game", "", "Game to resolve")
	force := flag.Bool("force", false, "Resolve now, ignoring the deadline (requires -user)")
	userID := flag.String("user", "", "Acting user id")
	seedPath := flag.String("seed", "", "Create a game from a JSON file")
	token := flag.Bool("token", false, "Print a bearer token for -user and exit")
	noRedis := flag.Bool("no-redis", false, "Skip the resolution lease and deadline timers")
	timeout := flag.Duration("timeout", time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Dev: cfg.Dev})

	if *token {
		if *userID == "" {
			log.Fatal().Msg("-token requires -user")
		}
		tok, err := auth.NewJWTManager(cfg.JWTSecret).GenerateAccessToken(*userID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to mint token")
		}
		fmt.Println(tok)
		return
	}
	if *seedPath == "" && *gameID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *force && *userID == "" {
		log.Fatal().Msg("-force requires -user")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	gameStore, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Game store connection failed")
	}
	defer closeStore()

	var cache repository.TurnCache
	if !*noRedis {
		redisClient, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer redisClient.Close()
		cache = redisClient
	}

	if *seedPath != "" {
		id, err := seedGame(ctx, gameStore, cache, *seedPath, time.Now())
		if err != nil {
			log.Fatal().Err(err).Str("file", *seedPath).Msg("Seeding failed")
		}
		log.Info().Str("gameId", id).Msg("Game created")
		fmt.Println(id)
		return
	}

	turns := service.NewTurnService(gameStore, cache, nil)
	turns.SetDice(service.SeededDice(cfg.DiceSeed))
	turns.SetLeaseTTL(cfg.LeaseTTL)

	if *force {
		err = turns.ForceAdvance(ctx, *gameID, *userID)
	} else {
		err = turns.ResolveTurn(ctx, *gameID)
	}
	if err != nil {
		log.Fatal().Err(err).Str("gameId", *gameID).Msg("Resolution failed")
	}

	g, _, err := turns.GetGame(ctx, *gameID)
	if err != nil {
		log.Fatal().Err(err).Str("gameId", *gameID).Msg("Reload failed")
	}
	log.Info().Str("gameId", g.ID).Int("turn", g.TurnNumber).Str("season", string(g.Season)).
		Int("year", g.Year).Str("phase", string(g.Phase)).Time("deadline", g.PhaseDeadline).
		Msg("Game state")
}

// seedGame reads a seed file, fills in defaults and stores the game. It
// returns the game id.
func seedGame(ctx context.Context, gs repository.GameStore, cache repository.TurnCache, path string, now time.Time) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return "", fmt.Errorf("parse seed: %w", err)
	}
	g, players, err := prepareSeed(seed, machiavelli.ItalyMap(), now)
	if err != nil {
		return "", err
	}
	if err := gs.CreateGame(ctx, model.NewGame{Game: g, Players: players}); err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}
	if cache != nil {
		if err := cache.SetTimer(ctx, g.ID, g.PhaseDeadline); err != nil {
			log.Warn().Err(err).Str("gameId", g.ID).Msg("Failed to set timer, poller will pick up the deadline")
		}
	}
	return g.ID, nil
}

// prepareSeed validates a seed against the map and fills in ids, the opening
// phase and each player's cities.
func prepareSeed(seed seedFile, m *machiavelli.Map, now time.Time) (*machiavelli.Game, []machiavelli.Player, error) {
	g := seed.Game
	if len(seed.Players) < 2 {
		return nil, nil, fmt.Errorf("a game needs at least 2 players, got %d", len(seed.Players))
	}
	if g.OrdersDuration <= 0 {
		return nil, nil, fmt.Errorf("ordersDuration must be positive")
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.TurnNumber == 0 {
		g.TurnNumber = 1
	}
	if g.Season == "" {
		g.Season = machiavelli.Spring
	}
	if g.Year == 0 {
		g.Year = startYear
	}
	g.Version = 0
	g.Submissions = 0
	g.Winners = nil
	g.VictoryType = ""

	seated := make(map[machiavelli.PlayerID]bool, len(seed.Players))
	for _, p := range seed.Players {
		if p.ID == "" || seated[p.ID] {
			return nil, nil, fmt.Errorf("player ids must be unique and non-empty, got %q", p.ID)
		}
		seated[p.ID] = true
	}

	unitIDs := make(map[machiavelli.UnitID]bool, len(g.Units))
	for i := range g.Units {
		u := &g.Units[i]
		if u.ID == "" {
			u.ID = machiavelli.UnitID(uuid.NewString())
		}
		if unitIDs[u.ID] {
			return nil, nil, fmt.Errorf("duplicate unit id %s", u.ID)
		}
		unitIDs[u.ID] = true
		if !seated[u.Owner] {
			return nil, nil, fmt.Errorf("unit %s belongs to unknown player %s", u.ID, u.Owner)
		}
		if !u.Type.Valid() {
			return nil, nil, fmt.Errorf("unit %s has unknown type %q", u.ID, u.Type)
		}
		if !m.CanOccupy(u.Type, u.Province) {
			return nil, nil, fmt.Errorf("unit %s cannot stand in %q", u.ID, u.Province)
		}
	}

	if g.DiplomaticDuration > 0 {
		g.Phase = machiavelli.PhaseDiplomatic
		g.PhaseDeadline = now.Add(g.DiplomaticDuration)
	} else {
		machiavelli.OpenOrders(&g, now)
	}

	players := make([]machiavelli.Player, len(seed.Players))
	for i, p := range seed.Players {
		p.IsAlive = true
		p.Status = machiavelli.StatusActive
		p.InactivityCounter = 0
		p.HasSubmittedOrders = false
		p.Cities = machiavelli.ControlledCities(m, g.Units, p.ID)
		players[i] = p
	}
	return &g, players, nil
}
