// Package coordinator pairs exactly two live connections into a
// session: one controller whose viewport state is authoritative and
// one observer who mirrors it. It owns role assignment, session
// lifetime against the shared store and rate-limited state relay.
package coordinator

import (
	"context"
	"net/http"

	"github.com/geosync/geosync/pkg/config"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/metrics"
	"github.com/geosync/geosync/pkg/monitoring"
	"github.com/geosync/geosync/pkg/network/httpx"
	"github.com/geosync/geosync/pkg/service"
	"github.com/geosync/geosync/pkg/session"
	"github.com/go-redis/redis/v8"
)

type Coordinator struct {
	conf     config.Config
	log      *logger.Logger
	hub      *Hub
	redis    *redis.Client
	services service.Group
}

func New(conf config.Config, log *logger.Logger) *Coordinator {
	store, client := newStore(conf, log)
	hub := NewHub(conf, store, log)

	server := httpx.NewServer(
		conf.Server.Address,
		func(*httpx.Server) http.Handler {
			h := http.NewServeMux()
			h.HandleFunc("/ws", hub.handleWS)
			h.HandleFunc("/health", hub.handleHealth)
			h.HandleFunc("/api/session/", hub.handleSessionStatus)
			return h
		},
		httpx.WithLogger(log),
	)

	c := &Coordinator{conf: conf, log: log, hub: hub, redis: client}
	c.services.Add(server)
	c.services.AddIf(conf.Monitoring.IsEnabled(), monitoring.New(conf.Monitoring, "geosync", log))
	return c
}

func (c *Coordinator) Run() { c.services.Start() }

func (c *Coordinator) Shutdown(ctx context.Context) error {
	err := c.services.Shutdown(ctx)
	if c.redis != nil {
		_ = c.redis.Close()
	}
	return err
}

// newStore picks the session store backend: Redis when reachable,
// otherwise the in-process fallback. The fallback trades
// multi-instance consistency for availability.
func newStore(conf config.Config, log *logger.Logger) (session.Store, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:        conf.Redis.Addr,
		Password:    conf.Redis.Password,
		DB:          conf.Redis.Db,
		DialTimeout: conf.Redis.OpTimeout,
		MaxRetries:  1,
	})
	store := session.NewRedisStore(client, conf.Session.Ttl, conf.Redis.OpTimeout)
	if err := store.Ping(context.Background()); err != nil {
		log.Warn().Err(err).
			Msg("Redis unavailable, using in-memory fallback. Not suitable for multi-instance deployments.")
		_ = client.Close()
		metrics.StoreFallback.Set(1)
		return session.NewMemoryStore(conf.Session.Ttl), nil
	}
	log.Info().Msgf("Redis connected at %v", conf.Redis.Addr)
	metrics.StoreFallback.Set(0)
	return store, client
}

// httpx.Server implements service.RunnableService.
var _ service.RunnableService = (*httpx.Server)(nil)
