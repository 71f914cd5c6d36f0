// Command devtoken mints HS256 bearer tokens for local development against auth.jwt_secret.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/config"
)

func main() {
	email := flag.String("email", "dev@example.com", "identity email")
	name := flag.String("name", "Dev User", "display name")
	plan := flag.String("plan", "", "plan claim, e.g. plus or pro")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if cfg.Auth.JWTSecret == "" {
		logrus.Fatal("auth.jwt_secret (MEDVOICE_AUTH_JWT_SECRET) must be set")
	}

	token, err := auth.Sign(cfg.Auth.JWTSecret, cfg.Auth.Issuer, auth.Identity{
		Subject: *email,
		Email:   *email,
		Name:    *name,
		Plan:    *plan,
	}, *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("sign token")
	}
	fmt.Println(token)
}
