package coordinator

import (
	"github.com/geosync/geosync/pkg/com"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/network"
)

// User is one live connection.
type User struct {
	*com.Client

	id  network.Uid
	log *logger.Logger
}

func NewUser(client *com.Client, log *logger.Logger) *User {
	id := network.NewUid()
	return &User{
		Client: client,
		id:     id,
		log:    log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (u *User) Id() network.Uid { return u.id }
