package rebaser

import (
	"context"
	"log"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/errkind"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/wsg"
)

// RebaseFunc performs the actual rebase for one request: look up the
// change set's base/onto/from snapshots by whatever storage the caller
// wires in (internal/lhc in production), run wsg.Rebase, persist the
// result, and report the outcome. The server only owns the message
// protocol around this call.
type RebaseFunc func(ctx context.Context, req EnqueueUpdatesRequest) ([]wsg.Conflict, error)

// Server is the Rebaser server half: for a single (workspace, change set),
// it is the sole consumer of that change set's requests subject —
// subscribing with a fixed consumer group name on a subject already
// scoped to one change set gives an exclusive per-change-set lock without
// any separate coordination mechanism, since a transport's consumer group
// never delivers the same message to two members.
type Server struct {
	transport bus.Transport
	subjects  bus.Subjects
	codec     Codec
	rebase    RebaseFunc
}

// NewServer returns a Server that applies incoming requests via rebase.
func NewServer(transport bus.Transport, codec Codec, rebase RebaseFunc) *Server {
	return &Server{transport: transport, subjects: bus.DefaultSubjects(), codec: codec, rebase: rebase}
}

// Serve subscribes to (workspaceID, changeSetID)'s requests subject and
// processes incoming EnqueueUpdatesRequests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, workspaceID, changeSetID string) error {
	subject := s.subjects.RebaserRequests(workspaceID, changeSetID)
	sub, err := s.transport.Subscribe(ctx, subject, "rebaser-server")
	if err != nil {
		return errkind.Wrap(errkind.BusPublish, "subscribe rebaser requests", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			s.handle(ctx, sub, msg)
		}
	}
}

func (s *Server) handle(ctx context.Context, sub bus.Subscription, msg bus.Message) {
	req, err := s.codec.DecodeRequest(msg.Body)
	if err != nil {
		log.Printf("rebaser server: malformed request on %s: %v", msg.Subject, err)
		s.ackOrLog(ctx, sub, msg)
		return
	}

	conflicts, rebaseErr := s.rebase(ctx, req)

	if msg.Headers.ReplyInboxName != "" {
		s.reply(ctx, req.RequestID, msg.Headers.ReplyInboxName, conflicts, rebaseErr)
	}
	s.ackOrLog(ctx, sub, msg)
}

func (s *Server) reply(ctx context.Context, requestID id.ID, replyInbox string, conflicts []wsg.Conflict, rebaseErr error) {
	resp := EnqueueUpdatesResponse{RequestID: requestID, Status: StatusSuccess}
	switch {
	case rebaseErr != nil:
		resp.Status = StatusError
		resp.Error = rebaseErr.Error()
	case len(conflicts) > 0:
		resp.Status = StatusConflict
		resp.ConflictKeys = make([]string, len(conflicts))
		for i, c := range conflicts {
			resp.ConflictKeys[i] = c.NodeID.String()
		}
	}

	body, err := s.codec.EncodeResponse(resp)
	if err != nil {
		log.Printf("rebaser server: encode response for %s: %v", requestID, err)
		return
	}

	replyMsg := bus.Message{
		Subject: replyInbox,
		Headers: bus.Headers{
			ContentType:    contentTypeJSON,
			MessageType:    messageTypeEnqueueReply,
			MessageVersion: messageVersionV1,
			MessageID:      requestID.String(),
		},
		Body: body,
	}
	if err := s.transport.Publish(ctx, replyMsg, bus.PublishOptions{}); err != nil {
		log.Printf("rebaser server: publish reply for %s: %v", requestID, err)
	}
}

func (s *Server) ackOrLog(ctx context.Context, sub bus.Subscription, msg bus.Message) {
	if err := sub.Ack(ctx, msg); err != nil {
		log.Printf("rebaser server: ack %s: %v", msg.Subject, err)
	}
}
