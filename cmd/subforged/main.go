// Command subforged runs the subforge HTTP daemon. The configuration file is
// taken from SUBFORGE_CONFIG, ~/.config/subforge/config.toml, or ./subforge.toml.
package main

import (
	"context"
	"log"

	"subforge/internal/config"
	"subforge/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("subforged: %v", err)
	}
}
