package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/model"
)

// SubscriptionFromRequest builds the caller's feed filter from the query
// string. Children can only watch their own logs.
func SubscriptionFromRequest(r *http.Request) (Subscription, int, string) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return Subscription{}, http.StatusUnauthorized, "unauthorized"
	}

	q := r.URL.Query()
	sub := Subscription{
		FamilyID: ac.FamilyID,
		UserID:   q.Get("user_id"),
		Status:   model.VerificationStatus(q.Get("status")),
	}

	switch sub.Status {
	case "", model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		return Subscription{}, http.StatusBadRequest, "invalid status filter"
	}

	if !ac.IsParent() {
		if sub.UserID != "" && sub.UserID != ac.UserID {
			return Subscription{}, http.StatusForbidden, "children may only watch their own logs"
		}
		sub.UserID = ac.UserID
	}
	return sub, http.StatusOK, ""
}

// HandleWebSocket upgrades authenticated requests and streams the matching
// slice of the change feed until the client disconnects.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, status, msg := SubscriptionFromRequest(r)
		if status != http.StatusOK {
			http.Error(w, msg, status)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket subscribed", "family_id", sub.FamilyID, "user_id", sub.UserID, "status", sub.Status)
		client := NewClient(hub, conn, sub)
		client.Run(r.Context())
	}
}
