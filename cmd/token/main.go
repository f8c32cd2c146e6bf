// Command token prints a signed access token for local testing of the /v1
// routes.  It reads JWT_SECRET and ACCESS_TOKEN_TTL_MIN like the server.
//
//	go run ./cmd/token -sub U1
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-registration-ledger/internal/config"
	"github.com/iliyamo/event-registration-ledger/internal/utils"
)

func main() {
	sub := flag.String("sub", "", "owner ID to put in the sub claim")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadAuth()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, *sub, cfg.AccessTTL())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println(tok.Token)
}
