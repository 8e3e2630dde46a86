// Package rebaser implements the Rebaser client/server protocol (spec
// §4.G): a request/task/reply message exchange over internal/bus that
// asks a single authoritative rebaser instance per change set to apply a
// batch of updates via internal/wsg.Rebase.
//
// The two-message pattern — a content-bearing publish to the requests
// subject, followed by a fire-and-forget empty wakeup to the tasks
// subject, whose dedup key collapses bursts of wakeups for the same
// change set into one — follows original_source/lib/rebaser-client/src/lib.rs's
// call_async exactly, translated from NATS JetStream subjects/headers to
// this module's bus.Transport abstraction. The optional reply-inbox round
// trip mirrors call_with_reply: subscribe to a fresh inbox subject first,
// then include it as a header so the server knows where to publish its
// response.
package rebaser

import (
	"context"
	"fmt"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/errkind"
	"eve.evalgo.org/internal/id"
)

const (
	contentTypeJSON           = "application/json"
	messageTypeEnqueueRequest = "EnqueueUpdatesRequest"
	messageTypeEnqueueReply   = "EnqueueUpdatesResponse"
	messageVersionV1          = "1"
)

// EnqueueUpdatesRequest is the content published to the requests subject.
type EnqueueUpdatesRequest struct {
	RequestID       id.ID
	WorkspaceID     string
	ChangeSetID     string
	UpdatesAddress  chash.Hash
	FromChangeSetID string // empty when the updates did not originate from another change set
}

// ResponseStatus is the terminal outcome the server reports back.
type ResponseStatus int

const (
	StatusSuccess ResponseStatus = iota
	StatusConflict
	StatusError
)

// EnqueueUpdatesResponse is the content published to a reply inbox, if the
// caller asked for one.
type EnqueueUpdatesResponse struct {
	RequestID    id.ID
	Status       ResponseStatus
	ConflictKeys []string // node ids in conflict, stringified for wire simplicity
	Error        string
}

// Client is the Rebaser client: it enqueues update batches for a specific
// (workspace, change set) pair.
type Client struct {
	transport bus.Transport
	subjects  bus.Subjects
	codec     Codec
}

// Codec serializes/deserializes the protocol's two payload types. Kept as
// an interface so JSON (the default) can be swapped for a more compact
// wire format without touching the client/server logic.
type Codec interface {
	EncodeRequest(EnqueueUpdatesRequest) ([]byte, error)
	DecodeRequest([]byte) (EnqueueUpdatesRequest, error)
	EncodeResponse(EnqueueUpdatesResponse) ([]byte, error)
	DecodeResponse([]byte) (EnqueueUpdatesResponse, error)
}

// NewClient returns a Client publishing over transport using codec.
func NewClient(transport bus.Transport, codec Codec) *Client {
	return &Client{transport: transport, subjects: bus.DefaultSubjects(), codec: codec}
}

// EnqueueUpdates publishes a request to apply updatesAddress's batch onto
// (workspaceID, changeSetID), then fires the collapsing wakeup on the
// tasks subject. It does not wait for a reply.
func (c *Client) EnqueueUpdates(ctx context.Context, workspaceID, changeSetID string, updatesAddress chash.Hash) (id.ID, error) {
	return c.enqueue(ctx, workspaceID, changeSetID, updatesAddress, "", "")
}

// EnqueueUpdatesFromChangeSet is EnqueueUpdates for a batch that
// originated on a different change set (spec §4.G
// "enqueue_updates_from_change_set").
func (c *Client) EnqueueUpdatesFromChangeSet(ctx context.Context, workspaceID, changeSetID string, updatesAddress chash.Hash, fromChangeSetID string) (id.ID, error) {
	return c.enqueue(ctx, workspaceID, changeSetID, updatesAddress, fromChangeSetID, "")
}

// EnqueueUpdatesWithReply is EnqueueUpdates but also subscribes to a fresh
// reply inbox and returns a subscription the caller can read the server's
// EnqueueUpdatesResponse from (spec §4.G "call_with_reply").
func (c *Client) EnqueueUpdatesWithReply(ctx context.Context, workspaceID, changeSetID string, updatesAddress chash.Hash) (id.ID, bus.Subscription, error) {
	replyInbox := fmt.Sprintf("rebaser.reply.%s", id.New())
	sub, err := c.transport.Subscribe(ctx, replyInbox, "reply-"+replyInbox)
	if err != nil {
		return id.None, nil, errkind.Wrap(errkind.BusPublish, "subscribe reply inbox", err)
	}

	requestID, err := c.enqueue(ctx, workspaceID, changeSetID, updatesAddress, "", replyInbox)
	if err != nil {
		sub.Close()
		return id.None, nil, err
	}
	return requestID, sub, nil
}

// DecodeReply decodes a message received on a reply-inbox subscription
// into an EnqueueUpdatesResponse.
func (c *Client) DecodeReply(msg bus.Message) (EnqueueUpdatesResponse, error) {
	return c.codec.DecodeResponse(msg.Body)
}

func (c *Client) enqueue(ctx context.Context, workspaceID, changeSetID string, updatesAddress chash.Hash, fromChangeSetID, replyInbox string) (id.ID, error) {
	requestID := id.New()
	req := EnqueueUpdatesRequest{
		RequestID:       requestID,
		WorkspaceID:     workspaceID,
		ChangeSetID:     changeSetID,
		UpdatesAddress:  updatesAddress,
		FromChangeSetID: fromChangeSetID,
	}

	body, err := c.codec.EncodeRequest(req)
	if err != nil {
		return id.None, errkind.Wrap(errkind.CacheDeserialize, "encode enqueue request", err)
	}

	requestsSubject := c.subjects.RebaserRequests(workspaceID, changeSetID)
	requestMsg := bus.Message{
		Subject: requestsSubject,
		Headers: bus.Headers{
			ContentType:    contentTypeJSON,
			MessageType:    messageTypeEnqueueRequest,
			MessageVersion: messageVersionV1,
			MessageID:      requestID.String(),
			ReplyInboxName: replyInbox,
		},
		Body: body,
	}
	if err := c.transport.Publish(ctx, requestMsg, bus.PublishOptions{}); err != nil {
		return id.None, errkind.Wrap(errkind.BusPublish, "publish enqueue request", err)
	}

	// Fire-and-forget wakeup: the task stream drops duplicates sharing a
	// dedup key, so a burst of callers enqueuing updates for the same
	// change set collapses into a single wakeup the server processes once
	// it is free, not once per caller.
	tasksSubject := c.subjects.RebaserTasks(workspaceID, changeSetID)
	wakeup := bus.Message{Subject: tasksSubject}
	dedupKey := fmt.Sprintf("rebase-wakeup:%s:%s", workspaceID, changeSetID)
	if err := c.transport.Publish(ctx, wakeup, bus.PublishOptions{DedupKey: dedupKey}); err != nil {
		return id.None, errkind.Wrap(errkind.BusPublish, "publish rebase wakeup", err)
	}

	return requestID, nil
}
