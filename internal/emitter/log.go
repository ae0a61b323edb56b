package emitter

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/entity"
)

// LogEmitter writes documents to the log instead of a collector. Useful in
// development and when no daemon runs.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter logs through logger at info level.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Send(docs ...entity.Document) error {
	for _, doc := range docs {
		raw, err := doc.Marshal()
		if err != nil {
			return err
		}
		fields := []zap.Field{
			zap.String("id", doc.ID),
			zap.String("name", doc.Name),
			zap.Int("subsegments", len(doc.Subsegments)),
			zap.String("document", string(raw)),
		}
		if doc.TraceID != "" {
			fields = append(fields, zap.String("trace_id", doc.TraceID))
		}

		if doc.Fault || doc.Error {
			l.logger.Warn("segment completed with error", fields...)
		} else {
			l.logger.Info("segment completed", fields...)
		}
	}
	return nil
}

func (l *LogEmitter) Close() error {
	// Sync fails on non-file sinks such as a terminal.
	_ = l.logger.Sync()
	return nil
}
