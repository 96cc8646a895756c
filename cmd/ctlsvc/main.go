package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/ludo-services/configs"
	"github.com/avvvet/ludo-services/internal/gamesvc/app"
	gamecfg "github.com/avvvet/ludo-services/internal/gamesvc/config"
)

const SERVICE_NAME = "ctl"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
}

type dueSource interface {
	DueForClose(ctx context.Context, now time.Time) ([]string, error)
}

type closer interface {
	CloseTournament(ctx context.Context, id string) error
}

func main() {
	cfg := gamecfg.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}
	defer backends.Close()

	lifecycle := backends.Lifecycle(cfg)

	ticker := time.NewTicker(cfg.CloseInterval)
	defer ticker.Stop()

	log.Infof("%s service polling every %s", SERVICE_NAME, cfg.CloseInterval)
	for {
		select {
		case <-ctx.Done():
			log.Infof("%s service gracefully stopped", SERVICE_NAME)
			return
		case now := <-ticker.C:
			closeDue(ctx, backends.Tournaments, lifecycle, now)
		}
	}
}

// closeDue extends or closes every live tournament whose window has ended.
func closeDue(ctx context.Context, src dueSource, c closer, now time.Time) int {
	ids, err := src.DueForClose(ctx, now)
	if err != nil {
		log.Errorf("DueForClose error: %v", err)
		return 0
	}

	processed := 0
	for _, id := range ids {
		if err := c.CloseTournament(ctx, id); err != nil {
			log.WithField("tournamentId", id).Errorf("close tournament: %v", err)
			continue
		}
		processed++
	}
	return processed
}
