package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm/logger"

	"github.com/ddworken/analytics-ingest/internal/config"
)

// New builds the process logger. Output goes to stderr, and additionally to a rotated file
// when cfg.LogFile is set.
func New(cfg *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logrus.ParseLevel: %w", err)
	}

	logFormatter := new(logrus.TextFormatter)
	logFormatter.TimestampFormat = time.RFC3339
	logFormatter.FullTimestamp = true

	l := logrus.New()
	l.SetFormatter(logFormatter)
	l.SetLevel(level)

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		})
	}
	l.SetOutput(out)
	return l, nil
}

// GormLogger routes SQL logging into l. Only slow queries and errors are reported.
func GormLogger(l logrus.FieldLogger) logger.Interface {
	return logger.New(
		l.WithField("fromSQL", true),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
