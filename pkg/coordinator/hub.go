package coordinator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/com"
	"github.com/geosync/geosync/pkg/config"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/metrics"
	"github.com/geosync/geosync/pkg/network"
	"github.com/geosync/geosync/pkg/registry"
	"github.com/geosync/geosync/pkg/session"
)

const (
	casMaxRetries = 5
	casRetryDelay = 25 * time.Millisecond
	idMaxRolls    = 10
)

var (
	errSessionFull      = errors.New("session is full")
	errStoreUnavailable = errors.New("store unavailable")
)

// Hub owns all live connections and coordinates sessions between them.
type Hub struct {
	conf      config.Config
	store     session.Store
	registry  *registry.Registry
	users     com.Map[network.Uid, *User]
	gate      *gate
	connector *com.Connector
	log       *logger.Logger
}

func NewHub(conf config.Config, store session.Store, log *logger.Logger) *Hub {
	return &Hub{
		conf:      conf,
		store:     store,
		registry:  registry.New(),
		users:     com.NewMap[network.Uid, *User](),
		gate:      newGate(conf.Sync.ThrottleInterval),
		connector: com.NewConnector(com.WithOrigin(conf.Server.AllowedOrigin)),
		log:       log,
	}
}

// handleWS serves one websocket connection for its whole lifetime.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	client, err := h.connector.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	usr := NewUser(client, h.log)
	usr.log.Debug().Msg("Connect")

	h.users.Put(usr.Id(), usr)
	metrics.ActiveConnections.Inc()

	usr.OnPacket(func(in api.In) { h.route(usr, in) })
	usr.Listen()
	<-usr.Wait()

	h.users.Remove(usr.Id())
	metrics.ActiveConnections.Dec()
	h.release(usr, "disconnect")
	usr.log.Debug().Msg("Disconnect")
}

// route dispatches one inbound packet. Packets of a single connection
// are handled in arrival order on its reader goroutine.
func (h *Hub) route(u *User, in api.In) {
	switch in.T {
	case api.SessionCreate:
		h.handleSessionCreate(u, in)
	case api.SessionJoin:
		h.handleSessionJoin(u, in)
	case api.SessionLeave:
		h.handleSessionLeave(u, in)
	case api.MapUpdate:
		h.handleMapUpdate(u, in)
	case api.MapRequestSync:
		h.handleMapRequestSync(u, in)
	default:
		u.log.Warn().Msgf("unknown packet type %v", in.T)
	}
}

// findUser resolves a slot's connection id to a live local connection.
// A gone peer resolves to nothing, which every caller treats as a no-op.
func (h *Hub) findUser(connectionId string) (*User, bool) {
	return h.users.Find(network.Uid(connectionId))
}

// update runs an atomic read-modify-write against a session record.
// The decide callback inspects and mutates the freshly read record and
// may veto the whole operation with an error. Lost races are retried
// with a short constant backoff before degrading to errStoreUnavailable.
func (h *Hub) update(id string, decide func(*session.Session) error) (*session.Session, error) {
	ctx := context.Background()
	var updated *session.Session
	op := func() error {
		cur, err := h.store.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := decide(cur); err != nil {
			return backoff.Permanent(err)
		}
		upd, err := h.store.Update(ctx, id, cur.Version, func(s *session.Session) {
			s.Controller, s.Observer, s.LastState = cur.Controller, cur.Observer, cur.LastState
		})
		if errors.Is(err, session.ErrConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		updated = upd
		return nil
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(casRetryDelay), casMaxRetries))
	if errors.Is(err, session.ErrConflict) {
		metrics.StoreErrors.WithLabelValues("update").Inc()
		return nil, errStoreUnavailable
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}
