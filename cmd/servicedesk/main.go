package main

import (
	"log"

	"github.com/opsdesk-io/servicedesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
