package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/auth"
)

func main() {
	// Load .env from project root
	_ = godotenv.Load("../.env")

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run hashpw.go <password>")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Printf("Error: could not hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("bcrypt hash for seeding master_users:")
	fmt.Println(hash)
}
