package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/direct/entity"
)

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Insert(ctx context.Context, msg *entity.Message) (string, error)
	GetThread(ctx context.Context, a, b string) ([]entity.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
}

// PeerRepository defines the interface for resolving conversation peers
type PeerRepository interface {
	Following(ctx context.Context, selfID string) ([]entity.Peer, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Service handles conversation directory and message store logic
type Service struct {
	messages MessageRepository
	peers    PeerRepository
}

// New creates a new direct message service
func New(messages MessageRepository, peers PeerRepository) *Service {
	return &Service{
		messages: messages,
		peers:    peers,
	}
}

// Peers returns the identities selfID follows, ordered by username.
// An identity that follows nobody gets an empty list.
func (s *Service) Peers(ctx context.Context, selfID string) ([]entity.Peer, error) {
	peers, err := s.peers.Following(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("getting peers: %w", err)
	}
	if peers == nil {
		peers = []entity.Peer{}
	}
	return peers, nil
}

// FetchThread returns all messages between selfID and peerID ascending by creation time
func (s *Service) FetchThread(ctx context.Context, selfID, peerID string) ([]entity.Message, error) {
	if err := validatePeer(selfID, peerID); err != nil {
		return nil, err
	}

	messages, err := s.messages.GetThread(ctx, selfID, peerID)
	if err != nil {
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	if messages == nil {
		messages = []entity.Message{}
	}
	return messages, nil
}

// CheckPeer reports whether peerID is an existing identity selfID can converse with
func (s *Service) CheckPeer(ctx context.Context, selfID, peerID string) error {
	if err := validatePeer(selfID, peerID); err != nil {
		return err
	}

	exists, err := s.peers.Exists(ctx, peerID)
	if err != nil {
		return fmt.Errorf("checking peer: %w", err)
	}
	if !exists {
		return entity.ErrUserNotFound
	}
	return nil
}

// SendInput represents input for sending a message
type SendInput struct {
	SenderID   string
	ReceiverID string
	Text       string
	ClientID   string // optional correlation id echoed back on the stored row
}

// SendOutput represents output from sending a message
type SendOutput struct {
	MessageID string
}

// Send stores a new unread message. It validates before touching storage and
// never retries; the thread converges through the next change event.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	text, err := entity.ValidateMessageText(in.Text)
	if err != nil {
		return nil, err
	}
	if err := s.CheckPeer(ctx, in.SenderID, in.ReceiverID); err != nil {
		return nil, err
	}

	id, err := s.messages.Insert(ctx, &entity.Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       text,
		ClientID:   in.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	return &SendOutput{MessageID: id}, nil
}

// MarkThreadRead marks every unread message from peerID to selfID as read and
// returns how many changed. Calling it again is a no-op.
func (s *Service) MarkThreadRead(ctx context.Context, selfID, peerID string) (int64, error) {
	if err := validatePeer(selfID, peerID); err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, selfID, peerID)
	if err != nil {
		return 0, fmt.Errorf("marking thread read: %w", err)
	}
	return n, nil
}

func validatePeer(selfID, peerID string) error {
	if selfID == peerID {
		return entity.ErrInvalidRecipient
	}
	if _, err := uuid.Parse(peerID); err != nil {
		return entity.ErrUserNotFound
	}
	return nil
}
