package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/usagedeck/usagedeck/internal/cli"
)

func main() {
	// A local .env may carry USAGEDECK_* paths and telegram secrets.
	_ = godotenv.Load()

	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
