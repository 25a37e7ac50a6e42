package messages

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reply is the single answer a requester receives for a message.
type Reply interface {
	isReply()
}

// Ack acknowledges a message that has no result payload.
type Ack struct{}

// Completion is the outcome of a completion check. Finalized is true only
// for the check that moved the instance to FINISHED.
type Completion struct {
	ProcessInstanceID int64 `json:"process_instance_id"`
	Completed         bool  `json:"completed"`
	Finalized         bool  `json:"finalized"`
}

// ProcessStarted reports a freshly created process instance.
type ProcessStarted struct {
	ProcessInstanceID int64   `json:"process_instance_id"`
	SubjectIDs        []int64 `json:"subject_ids"`
}

// Failure carries an error back to the requester.
type Failure struct {
	Err error
}

func (f Failure) Error() string {
	return f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

func (Ack) isReply()            {}
func (Completion) isReply()     {}
func (ProcessStarted) isReply() {}
func (Failure) isReply()        {}

// Replier delivers the reply of a message.
type Replier interface {
	Reply(ctx context.Context, reply Reply)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, reply Reply)

func (f ReplierFunc) Reply(ctx context.Context, reply Reply) {
	f(ctx, reply)
}

// NoReply drops replies. It is used for fire-and-forget messages.
var NoReply Replier = ReplierFunc(func(context.Context, Reply) {})

// ChanReplier delivers a reply on a buffered channel without ever blocking.
type ChanReplier struct {
	ch chan Reply
}

// NewChanReplier creates a replier whose reply can be read from C.
func NewChanReplier() *ChanReplier {
	return &ChanReplier{ch: make(chan Reply, 1)}
}

func (r *ChanReplier) Reply(_ context.Context, reply Reply) {
	select {
	case r.ch <- reply:
	default:
	}
}

// C returns the channel the reply is delivered on.
func (r *ChanReplier) C() <-chan Reply {
	return r.ch
}

// Envelope wraps a message with its delivery metadata.
type Envelope struct {
	ID         string
	Message    Message
	ReplyTo    Replier
	ReceivedAt time.Time
}

// NewEnvelope wraps msg with a fresh id. A nil replyTo drops the reply.
func NewEnvelope(msg Message, replyTo Replier) Envelope {
	if replyTo == nil {
		replyTo = NoReply
	}

	return Envelope{
		ID:         uuid.NewString(),
		Message:    msg,
		ReplyTo:    replyTo,
		ReceivedAt: time.Now().UTC(),
	}
}

// Teller accepts messages for asynchronous processing.
type Teller interface {
	Tell(ctx context.Context, env Envelope) error
}
