package main

import (
	"log"

	"listing-ingest-service/internal"
)

func main() {
	worker, err := internal.NewWorker()
	if err != nil {
		log.Fatalf("failed to initialize enrichment worker: %v", err)
	}

	if err := worker.Run(); err != nil {
		log.Fatalf("enrichment worker finished with error: %v", err)
	}
}
