package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

func main() {
	secret := flag.StringP("secret", "s", os.Getenv("JWT_SECRET"), "HS256 secret (defaults to $JWT_SECRET)")
	privKeyB64 := flag.StringP("key", "k", "", "Base64-encoded Ed25519 private key (EdDSA instead of HS256)")
	userID := flag.StringP("user", "u", "", "User ID (sub claim)")
	agentID := flag.StringP("agent", "a", "", "Agent ID")
	sessionID := flag.String("session", "", "Session to bind websocket connections to (sid claim)")
	issuer := flag.String("issuer", os.Getenv("JWT_ISSUER"), "Issuer claim")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	header := flag.Bool("header", false, "Print as an Authorization header")
	flag.Parse()

	if *userID == "" || (*secret == "" && *privKeyB64 == "") {
		fmt.Fprintln(os.Stderr, "Usage: sign --user <id> [--agent <id>] [--session <id>] (--secret <s> | --key <ed25519-private-key-base64>)")
		flag.PrintDefaults()
		os.Exit(1)
	}

	iss := &auth.Issuer{
		Secret: []byte(*secret),
		Issuer: *issuer,
		TTL:    *ttl,
	}
	if *privKeyB64 != "" {
		priv, err := crypto.ParsePrivateKey(*privKeyB64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
			os.Exit(1)
		}
		iss.PrivateKey = priv
	}

	token, err := iss.Mint(auth.Identity{
		UserID:    *userID,
		AgentID:   *agentID,
		SessionID: *sessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	if *header {
		fmt.Printf("Authorization: Bearer %s\n", token)
		return
	}
	fmt.Println(token)
}
