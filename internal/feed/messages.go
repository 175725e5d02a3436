package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/reconcile"
)

// Phoenix channel protocol events used by the realtime transport.
const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventToken     = "access_token"

	topicHeartbeat = "phoenix"
)

// phxMessage is the envelope every frame on the socket uses, in both
// directions.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token"`
}

type joinConfig struct {
	PostgresChanges []changeSpec `json:"postgres_changes"`
}

type changeSpec struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
}

type replyPayload struct {
	Status string `json:"status"`
}

type changesPayload struct {
	Data changeData `json:"data"`
}

type changeData struct {
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// feedRow mirrors the persisted record layout as it appears in change
// notifications. Delete notifications may carry the primary key only.
type feedRow struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// translate converts one postgres_changes payload into a reconcile
// event. The second return is false for change types the engine does
// not consume (updates, truncates).
func translate(payload []byte) (reconcile.RemoteEvent, bool, error) {
	var changes changesPayload
	if err := json.Unmarshal(payload, &changes); err != nil {
		return reconcile.RemoteEvent{}, false, fmt.Errorf("decode change payload: %w", err)
	}

	switch changes.Data.Type {
	case "INSERT":
		var row feedRow
		if err := json.Unmarshal(changes.Data.Record, &row); err != nil {
			return reconcile.RemoteEvent{}, false, fmt.Errorf("decode inserted record: %w", err)
		}
		return reconcile.RemoteEvent{
			Kind: reconcile.RemoteInsert,
			Record: domain.Bookmark{
				ID:        row.ID,
				Owner:     row.Owner,
				Title:     row.Title,
				Target:    row.Target,
				CreatedAt: row.CreatedAt,
			},
		}, true, nil

	case "DELETE":
		var row feedRow
		if err := json.Unmarshal(changes.Data.OldRecord, &row); err != nil {
			return reconcile.RemoteEvent{}, false, fmt.Errorf("decode deleted record: %w", err)
		}
		return reconcile.RemoteEvent{
			Kind:   reconcile.RemoteDelete,
			Record: domain.Bookmark{ID: row.ID},
		}, true, nil

	default:
		return reconcile.RemoteEvent{}, false, nil
	}
}
