// Package relay implements the send path: persist a message, then push it
// to the recipient's live connections if any.
package relay

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/blob"
	"chatrelay/internal/model"
	"chatrelay/internal/pairlock"
	"chatrelay/internal/presence"
	"chatrelay/internal/store"
)

type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
}

type UserLookup interface {
	ByID(ctx context.Context, id string) (*model.User, error)
}

type Presence interface {
	ConnectionsFor(userID string) []presence.Handle
}

type Pusher interface {
	Push(h presence.Handle, ev model.Event) error
}

type SendRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      []byte
}

type SendResult struct {
	Message model.Message
	// Delivered counts successful pushes; informational only.
	Delivered int
}

type Service struct {
	messages MessageStore
	users    UserLookup
	blobs    blob.Uploader
	presence Presence
	pusher   Pusher
	locks    *pairlock.Locker
}

func NewService(messages MessageStore, users UserLookup, blobs blob.Uploader,
	p Presence, pusher Pusher, locks *pairlock.Locker) *Service {
	return &Service{
		messages: messages,
		users:    users,
		blobs:    blobs,
		presence: p,
		pusher:   pusher,
		locks:    locks,
	}
}

// Send persists the message and relays it best-effort. Once the message is
// stored, Send succeeds regardless of live delivery.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.ReceiverID == "" {
		return nil, apperr.InvalidRequest("receiverId is required")
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Image) == 0 {
		return nil, apperr.InvalidRequest("message content is required")
	}
	if _, err := s.users.ByID(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.InvalidRequest("receiver does not exist")
		}
		return nil, apperr.Persistence("failed to look up receiver", err)
	}

	msg := model.Message{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
	}

	if len(req.Image) > 0 {
		url, err := s.blobs.Upload(ctx, req.Image)
		if err != nil {
			return nil, apperr.UpstreamStorage(err)
		}
		msg.Image = url
	}

	unlock := s.locks.Lock(req.SenderID, req.ReceiverID)
	defer unlock()

	if err := s.messages.Create(ctx, &msg); err != nil {
		return nil, apperr.Persistence("failed to save message", err)
	}

	return &SendResult{Message: msg, Delivered: s.relay(msg)}, nil
}

// relay pushes msg once to each of the receiver's open connections.
// No retries; failures are logged and dropped.
func (s *Service) relay(msg model.Message) int {
	handles := s.presence.ConnectionsFor(msg.ReceiverID)
	if len(handles) == 0 {
		jww.DEBUG.Printf("[relay] %s offline, message %s left unseen", msg.ReceiverID, msg.ID)
		return 0
	}

	ev := model.NewMessageEvent(msg)
	delivered := 0
	for _, h := range handles {
		if err := s.pusher.Push(h, ev); err != nil {
			jww.WARN.Printf("[relay] push of %s to %s via %s failed: %v", msg.ID, msg.ReceiverID, h.ID(), err)
			continue
		}
		delivered++
	}
	jww.DEBUG.Printf("[relay] message %s pushed to %d/%d connections of %s", msg.ID, delivered, len(handles), msg.ReceiverID)
	return delivered
}
