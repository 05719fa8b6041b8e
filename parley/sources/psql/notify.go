package psql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// NotifyChannel is the postgres channel the messages insert trigger notifies on.
const NotifyChannel = "messages_insert"

const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_message_insert() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + NotifyChannel + `', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_insert_notify ON messages;
CREATE TRIGGER messages_insert_notify
	AFTER INSERT ON messages
	FOR EACH ROW EXECUTE FUNCTION notify_message_insert();
`

// Listener turns postgres insert notifications into published messages.
type Listener struct {
	dsn     string
	publish func(types.Message)
}

func NewListener(dsn string, publish func(types.Message)) *Listener {
	return &Listener{dsn: dsn, publish: publish}
}

// Run blocks until ctx is cancelled (returning nil) or the connection fails.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("listener connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	logging.AppLogger.Info("listening for message inserts", zap.String("channel", NotifyChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		msg, err := DecodeNotification(n.Payload)
		if err != nil {
			logging.ErrorLogger.Error("bad notification payload", zap.Error(err), zap.String("payload", n.Payload))
			continue
		}
		l.publish(msg)
	}
}

// DecodeNotification parses a row_to_json payload of the messages table.
func DecodeNotification(payload string) (types.Message, error) {
	var msg types.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return types.Message{}, err
	}
	if msg.ID == "" || msg.ConversationID == "" {
		return types.Message{}, errors.New("payload is missing id or conversation_id")
	}
	return msg, nil
}
