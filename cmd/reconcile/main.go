package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/statement-reconciler/internal/commands"
)

func main() {
	_ = godotenv.Load()

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
