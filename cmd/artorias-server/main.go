package main

import (
	"fmt"
	"log"
	"net/http"

	"artorias-backend/internal/config"
	"artorias-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	defer s.Close()

	addr := ":" + cfg.Port
	fmt.Printf("ARTORIAS server listening on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, s.Router()))
}
