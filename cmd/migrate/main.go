package main

import (
	"log"
	"os"
	"strconv"

	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/bootstrap"
)

// Usage: migrate up | migrate down [steps]
func main() {
	cfg := configs.InitConfig()
	cfg.InitLogger()

	if len(os.Args) < 2 {
		log.Fatal("Insufficient arguments are provided in calling the command, expected up or down")
	}

	switch os.Args[1] {
	case "up":
		if err := bootstrap.MigrateUp(cfg.Database.ToMigrationUri()); err != nil {
			log.Fatal(err)
		}
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			if err != nil || n < 1 {
				log.Fatalf("Invalid steps argument %q, it must be a positive integer", os.Args[2])
			}
			steps = n
		}
		if err := bootstrap.MigrateDown(cfg.Database.ToMigrationUri(), steps); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q, expected up or down", os.Args[1])
	}
}
