package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/teamspace/pkg/changefeed"
	"go.uber.org/zap"
)

// MembershipChannel is the NOTIFY channel fed by the group_members trigger.
const MembershipChannel = "group_members_changes"

// membershipPayload mirrors the JSON built by notify_group_members_change().
type membershipPayload struct {
	Op      string    `json:"op"`
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// MembershipFeed republishes group_members notifications to a broker.
type MembershipFeed struct {
	dsn    string
	broker *changefeed.Broker[changefeed.MembershipChange]
	logger *zap.Logger
}

// NewMembershipFeed creates a feed listening with the given DSN.
func NewMembershipFeed(dsn string, broker *changefeed.Broker[changefeed.MembershipChange], logger *zap.Logger) *MembershipFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipFeed{dsn: dsn, broker: broker, logger: logger.Named("membership-feed")}
}

// Run listens until ctx is done.
func (f *MembershipFeed) Run(ctx context.Context) error {
	listener := pq.NewListener(f.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			f.logger.Warn("listener connection attempt failed", zap.Error(err))
		case pq.ListenerEventDisconnected:
			f.logger.Warn("listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			f.logger.Info("listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(MembershipChannel); err != nil {
		return err
	}
	f.logger.Info("listening for membership changes", zap.String("channel", MembershipChannel))

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			f.broker.Publish(f.decode(n))
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					f.logger.Warn("listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// decode converts a notification into a change. A nil notification means
// the connection was re-established and is reported as a resync.
func (f *MembershipFeed) decode(n *pq.Notification) changefeed.MembershipChange {
	change := changefeed.MembershipChange{Op: changefeed.OpResync, At: time.Now()}
	if n == nil {
		return change
	}

	var payload membershipPayload
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
		f.logger.Warn("malformed membership notification", zap.String("payload", n.Extra), zap.Error(err))
		return change
	}

	change.Op = changefeed.Op(payload.Op)
	change.WorkspaceID = payload.GroupID
	change.IdentityID = payload.UserID
	return change
}
