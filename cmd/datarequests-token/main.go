// Command datarequests-token signs a bearer token for a user id with the
// service secret. Intended for local development and smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/datarequests/pkg/auth"
)

func main() {
	userID := flag.Int64("user", 0, "user id to put in the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	issuer := flag.String("issuer", os.Getenv("DATAREQ_AUTH_ISSUER"), "token issuer")
	flag.Parse()

	tm, err := auth.NewTokenManager(os.Getenv("DATAREQ_AUTH_SECRET"), *issuer, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v (set DATAREQ_AUTH_SECRET)\n", err)
		os.Exit(1)
	}

	token, err := tm.IssueToken(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
