package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dukex/sbpm/pkg/messages"
)

// onceReplier forwards the first reply and drops every later one.
type onceReplier struct {
	next   messages.Replier
	logger *slog.Logger
	sent   atomic.Bool
}

func newOnceReplier(next messages.Replier, logger *slog.Logger) *onceReplier {
	if next == nil {
		next = messages.NoReply
	}

	return &onceReplier{next: next, logger: logger}
}

func (o *onceReplier) Reply(ctx context.Context, reply messages.Reply) {
	if !o.sent.CompareAndSwap(false, true) {
		o.logger.WarnContext(ctx, "dropping duplicate reply", "reply", fmt.Sprintf("%T", reply))

		return
	}

	o.next.Reply(ctx, reply)
}

func (o *onceReplier) replied() bool {
	return o.sent.Load()
}
