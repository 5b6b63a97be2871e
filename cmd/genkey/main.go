package main

import (
	"fmt"
	"os"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

func main() {
	secret, err := crypto.GenerateSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate keypair: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Printf("JWT_PUBLIC_KEY=%s\n", pub)
	fmt.Printf("Private key (base64, for sign -key): %s\n", priv)
}
