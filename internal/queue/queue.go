// Package queue carries projector control messages over Azure Storage
// queues: nudges that wake the projector right after a write lands, and
// rebuild requests posted by the admin API.
package queue

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// Message kinds.
const (
	KindNudge   = "nudge"
	KindRebuild = "rebuild"
)

// Message is one projector control message.
type Message struct {
	Kind   string `json:"kind"`
	Tenant string `json:"tenant,omitempty"`
	// Projection names the projection to rebuild. "all" rebuilds every
	// projection for the tenant.
	Projection string `json:"projection,omitempty"`
}

// Client produces and consumes control messages on one queue.
type Client struct {
	queue *azqueue.QueueClient
}

// New wraps a queue client. A nil queue yields a client whose Enqueue is a
// no-op, so binaries can run without queues configured.
func New(queue *azqueue.QueueClient) *Client {
	return &Client{queue: queue}
}

// Enqueue posts one message.
func (c *Client) Enqueue(ctx context.Context, msg Message) error {
	if c == nil || c.queue == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Dequeue pops the next message. ok is false when the queue is empty.
// Messages that fail to decode are deleted and skipped so a poison message
// cannot wedge the consumer.
func (c *Client) Dequeue(ctx context.Context) (Message, bool, error) {
	resp, err := c.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return Message{}, false, err
	}
	if len(resp.Messages) == 0 {
		return Message{}, false, nil
	}
	raw := resp.Messages[0]
	var msg Message
	ok := true
	if raw.MessageText == nil || json.Unmarshal([]byte(*raw.MessageText), &msg) != nil {
		ok = false
	}
	if _, err := c.queue.DeleteMessage(ctx, *raw.MessageID, *raw.PopReceipt, nil); err != nil {
		return Message{}, false, err
	}
	if !ok {
		return Message{}, false, nil
	}
	return msg, true, nil
}
