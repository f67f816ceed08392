package main

// gentoken mints operator JWTs for local development and API testing.
//
//	go run ./cmd/gentoken -operator 6f1c... -role cashier -location pos-01

import (
	"flag"
	"fmt"
	"os"
	"time"

	"settlepos/internal/config"
	"settlepos/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	operatorID := flag.String("operator", uuid.NewString(), "operator uuid")
	name := flag.String("name", "dev-operator", "operator display name")
	role := flag.String("role", middleware.RoleCashier, "cashier | supervisor | admin")
	location := flag.String("location", "pos-01", "location id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	now := time.Now()
	claims := middleware.JWTClaims{
		OperatorID: *operatorID,
		Name:       *name,
		Role:       *role,
		LocationID: *location,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.JWTExpirationHours) * time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
