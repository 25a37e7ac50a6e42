package eventlog_test

import (
	"log/slog"

	"github.com/dukex/sbpm/pkg/log"
)

func testLogger() *slog.Logger {
	return log.Discard()
}
