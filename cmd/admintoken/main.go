// Command admintoken prints a bearer token for the edge's /admin routes,
// signed with APP_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"vidplay/internal/auth"
	"vidplay/pkg/logger"
)

func main() {
	subject := flag.String("subject", "ops", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	log := logger.New(logger.Options{Level: os.Getenv("LOG_LEVEL")})
	secret := os.Getenv("APP_SECRET")
	if secret == "" {
		log.Fatal().Msg("APP_SECRET required")
	}
	tok, err := auth.NewService(secret, auth.DefaultIssuer).GenerateToken(*subject, auth.RoleAdmin, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(tok)
}
