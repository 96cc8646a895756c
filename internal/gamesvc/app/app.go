// Package app opens the backends shared by the game service and the tournament controller.
package app

import (
	"context"
	"fmt"
	"time"

	mongodb "github.com/avvvet/ludo-services/internal/db"
	"github.com/avvvet/ludo-services/internal/gamesvc/broker"
	"github.com/avvvet/ludo-services/internal/gamesvc/config"
	"github.com/avvvet/ludo-services/internal/gamesvc/db"
	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/lock"
	"github.com/avvvet/ludo-services/internal/gamesvc/notify"
	"github.com/avvvet/ludo-services/internal/gamesvc/service"
	"github.com/avvvet/ludo-services/internal/gamesvc/store"
	natscli "github.com/avvvet/ludo-services/internal/nats"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

type Backends struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Mongo *mongo.Database
	Nats  *natscli.Nats

	Tables      *store.TableStore
	Tournaments *store.TournamentStore
	Wallet      *store.WalletStore
	Results     *store.ResultStore
	Locker      *lock.RedisLocker
	Notifier    service.Notifier
	Queue       *events.Queue

	queueDone chan struct{}
	stopQueue context.CancelFunc
}

// Open connects every backend and starts the event queue. On error whatever
// was opened is closed again.
func Open(ctx context.Context, cfg config.Config, name string) (b *Backends, err error) {
	b = &Backends{}
	defer func() {
		if err != nil {
			b.Close()
			b = nil
		}
	}()

	if b.Pool, err = db.Connect(ctx, cfg.PostgresURL); err != nil {
		return b, fmt.Errorf("postgres: %w", err)
	}
	log.Info("pg connection established successfully")
	if err = store.Migrate(ctx, b.Pool); err != nil {
		return b, err
	}

	if b.Redis, err = db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		return b, fmt.Errorf("redis: %w", err)
	}
	log.Infof("redis connection established successfully %s", cfg.RedisAddr)

	if b.Mongo, err = mongodb.ConnectToDB(ctx, cfg.MongoURI); err != nil {
		return b, err
	}
	log.Infof("mongodb connection established successfully %s", b.Mongo.Name())

	if b.Nats, err = natscli.Connect(name); err != nil {
		return b, fmt.Errorf("nats: %w", err)
	}
	log.Infof("NATS connection established successfully %s", b.Nats.Url)

	b.Tables = store.NewTableStore(b.Redis, cfg.TableTTL)
	b.Tournaments = store.NewTournamentStore(b.Pool)
	b.Wallet = store.NewWalletStore(b.Pool)
	b.Results = store.NewResultStore(b.Mongo)
	if err = b.Results.EnsureIndexes(ctx, cfg.ResultTTL); err != nil {
		return b, err
	}
	b.Locker = lock.NewRedisLocker(b.Redis, cfg.LockTTL, cfg.LockRetry)

	if cfg.TelegramToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, push notifications disabled")
		b.Notifier = notify.Noop{}
	} else {
		var tg *notify.Telegram
		if tg, err = notify.NewTelegram(cfg.TelegramToken); err != nil {
			return b, err
		}
		b.Notifier = tg
	}

	b.Queue = events.NewQueue(1024, 5, 200*time.Millisecond)
	queueCtx, stop := context.WithCancel(context.Background())
	b.stopQueue, b.queueDone = stop, make(chan struct{})
	go func() {
		defer close(b.queueDone)
		b.Queue.Run(queueCtx, broker.NewPublisher(b.Nats.Conn))
	}()
	return b, nil
}

func (b *Backends) Lifecycle(cfg config.Config) *service.Lifecycle {
	return service.NewLifecycle(service.LifecycleDeps{
		Tournaments: b.Tournaments,
		Results:     b.Results,
		Wallet:      b.Wallet,
		Notifier:    b.Notifier,
		Sink:        b.Queue,
		Locker:      b.Locker,
	}, cfg.LockWait, cfg.DeepLink, nil)
}

// Close flushes queued events, then closes connections in reverse order.
func (b *Backends) Close() {
	if b.stopQueue != nil {
		b.stopQueue()
		<-b.queueDone
	}
	if b.Nats != nil {
		b.Nats.Conn.Drain()
	}
	if b.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Mongo.Client().Disconnect(ctx); err != nil {
			log.Warnf("mongodb disconnect: %s", err)
		}
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}
