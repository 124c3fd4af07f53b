package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/server/events"
)

// Subscribe backfills messages after req.AfterSequence and then streams live
// events for the chat. The live subscription is opened before the backfill
// so nothing committed in between is missed; message events already sent by
// the backfill are skipped by sequence. A subscriber dropped for falling
// behind is resubscribed from the last sequence it received.
func (s *GRPCServer) Subscribe(req *api.SubscribeRequest, stream api.SubscribeServer) error {
	ctx := stream.Context()
	id, err := identityFrom(ctx)
	if err != nil {
		return err
	}

	after := req.AfterSequence
	for {
		sub := s.broker.Subscribe(req.ChatID)
		err := s.backfill(ctx, id.UserID, req.ChatID, &after, stream)
		if err == nil {
			err = s.live(ctx, id.UserID, req.ChatID, &after, sub, stream)
		}
		sub.Close()

		if errors.Is(err, events.ErrSlowConsumer) {
			s.logger.Warn(ctx, "subscriber fell behind, resubscribing", "user_id", id.UserID, "chat_id", req.ChatID, "after", after)
			continue
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func (s *GRPCServer) backfill(ctx context.Context, userID, chatID string, after *int64, stream api.SubscribeServer) error {
	seq, err := s.svc.Messages.History(ctx, userID, chatID, *after)
	if err != nil {
		return s.toStatus(ctx, "Subscribe", err)
	}
	for m, err := range seq {
		if err != nil {
			return s.toStatus(ctx, "Subscribe", err)
		}
		ev := events.Event{Kind: events.KindMessage, ChatID: chatID, Sequence: m.Sequence, MessageID: m.ID, Message: m, OccurredAt: m.CreatedAt}
		if err := stream.Send(toEvent(ev)); err != nil {
			return err
		}
		*after = m.Sequence
	}
	return nil
}

func (s *GRPCServer) live(ctx context.Context, userID, chatID string, after *int64, sub *events.Subscription, stream api.SubscribeServer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			if ev.Kind == events.KindMessage && ev.Sequence <= *after {
				continue
			}
			// Membership can change while the stream is open.
			if _, err := s.svc.Chats.Get(ctx, userID, chatID); err != nil {
				return s.toStatus(ctx, "Subscribe", err)
			}
			if err := stream.Send(toEvent(ev)); err != nil {
				return err
			}
			if ev.Kind == events.KindMessage {
				*after = ev.Sequence
			}
		}
	}
}
