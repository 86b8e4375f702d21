package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zplace/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  log.Level
	}{
		{level: "trace", want: log.TraceLevel},
		{level: "DEBUG", want: log.DebugLevel},
		{level: "info", want: log.InfoLevel},
		{level: "warning", want: log.WarnLevel},
		{level: "", want: log.ErrorLevel},
		{level: "bogus", want: log.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewLogger(&config.Config{LogLevel: tt.level})
			require.Equal(t, tt.want, l.GetLevel())
		})
	}
}
