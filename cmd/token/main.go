// Package main mints a session token for local testing.
//
// The key is read from the server's data path, so the server must have run
// once before tokens can be minted. Data path and default lifetime come from
// the same environment and .env file the server reads.
//
// Usage:
//
//	FEED_TOKEN=... go run ./cmd/token --user 2244994945
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/config"
)

var (
	userID   = flag.String("user", "", "Platform user ID the session belongs to")
	duration = flag.Duration("duration", 0, "Token lifetime (default: TOKEN_DURATION)")
)

func main() {
	flag.Parse()

	if *userID == "" {
		log.Fatal("--user is required")
	}

	feedToken := os.Getenv("FEED_TOKEN")
	if feedToken == "" {
		log.Fatal("FEED_TOKEN must be set to the user's feed API bearer token")
	}

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	key, err := auth.LoadKey(cfg.Data.BasePath)
	if err != nil {
		log.Fatalf("Failed to load key from %s: %v", cfg.Data.BasePath, err)
	}

	lifetime := cfg.Auth.TokenDuration
	if *duration > 0 {
		lifetime = *duration
	}

	tokens, err := auth.NewTokenService(key, lifetime)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	token, err := tokens.GenerateSessionToken(auth.Session{UserID: *userID, FeedToken: feedToken})
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Token for %s valid until %s\n", *userID, time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Println(token)
}
