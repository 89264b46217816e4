package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rogo/internal/common"
)

// LogStreamer consumes log batches from arbor's context channel, filters them
// by level and message pattern, and pushes them to WebSocket clients. A rate
// limiter keeps chatty stretches from flooding the socket; a ticker drains
// whatever the limiter held back.
type LogStreamer struct {
	handler  *WebSocketHandler
	logger   arbor.ILogger
	channel  chan []arbormodels.LogEvent
	minLevel arbor.LogLevel
	exclude  []string
	interval time.Duration
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLogStreamer creates a streamer for the given WebSocket handler. config
// may be nil, which leaves the defaults: info level, 250ms batches, no
// exclusions.
func NewLogStreamer(handler *WebSocketHandler, config *common.WebSocketConfig, logger arbor.ILogger) *LogStreamer {
	minLevel := arbor.InfoLevel
	interval := 250 * time.Millisecond
	var exclude []string

	if config != nil {
		minLevel = parseLogLevel(config.MinLevel)
		exclude = config.ExcludePatterns
		if config.LogInterval != "" {
			if parsed, err := time.ParseDuration(config.LogInterval); err == nil && parsed > 0 {
				interval = parsed
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LogStreamer{
		handler:  handler,
		logger:   logger,
		channel:  make(chan []arbormodels.LogEvent, 10),
		minLevel: minLevel,
		exclude:  exclude,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Channel returns the channel arbor sends log batches to. Wire it with
// logger.SetChannel before Start.
func (s *LogStreamer) Channel() chan []arbormodels.LogEvent {
	return s.channel
}

// Start launches the streaming goroutine.
func (s *LogStreamer) Start() {
	s.wg.Add(1)
	go s.run()

	s.logger.Info().Dur("interval", s.interval).Msg("WebSocket log streamer started")
}

// Stop flushes pending entries and shuts the streamer down.
func (s *LogStreamer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("WebSocket log streamer stopped")
}

func (s *LogStreamer) run() {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log streamer panic recovered")
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var pending []LogEntry
	flush := func() {
		s.handler.BroadcastLogs(pending)
		pending = nil
	}

	for {
		select {
		case batch, ok := <-s.channel:
			if !ok {
				flush()
				return
			}
			pending = append(pending, s.convert(batch)...)
			if len(pending) > 0 && s.limiter.Allow() {
				flush()
			}

		case <-ticker.C:
			if len(pending) > 0 && s.limiter.Allow() {
				flush()
			}

		case <-s.ctx.Done():
			flush()
			return
		}
	}
}

// convert filters a batch and formats the survivors for display.
func (s *LogStreamer) convert(batch []arbormodels.LogEvent) []LogEntry {
	entries := make([]LogEntry, 0, len(batch))
	for _, event := range batch {
		if arborlevels.FromLogLevel(event.Level) < s.minLevel {
			continue
		}
		if s.excluded(event.Message) {
			continue
		}

		message := event.Message
		for key, value := range event.Fields {
			message += fmt.Sprintf(" %s=%v", key, value)
		}

		entries = append(entries, LogEntry{
			Timestamp: event.Timestamp.Format("15:04:05"),
			Level:     convertTo3Letter(event.Level.String()),
			Message:   message,
		})
	}
	return entries
}

func (s *LogStreamer) excluded(message string) bool {
	for _, pattern := range s.exclude {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// parseLogLevel converts a config string to an arbor level, defaulting to
// info on anything unrecognized.
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// convertTo3Letter converts full level names to the 3-letter display codes.
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return "TRC"
	case "DEBUG":
		return "DBG"
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}
