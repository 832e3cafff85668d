package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"driftbox/client/logging"
)

type ConsoleSink struct {
	logger   *log.Logger
	useColor bool
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{
		logger:   log.New(w, "", log.LstdFlags),
		useColor: cfg.UseColor,
	}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	s.logger.Printf("[%s] frame=%d category=%s severity=%s%s%s",
		event.Type, event.Frame, event.Category, s.formatSeverity(event.Severity),
		formatPayload(event.Payload), formatExtra(event.Extra))
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func (s *ConsoleSink) formatSeverity(sev logging.Severity) string {
	name, color := "unknown", "\x1b[0m"
	switch sev {
	case logging.SeverityDebug:
		name, color = "debug", "\x1b[90m"
	case logging.SeverityInfo:
		name, color = "info", "\x1b[36m"
	case logging.SeverityWarn:
		name, color = "warn", "\x1b[33m"
	case logging.SeverityError:
		name, color = "error", "\x1b[31m"
	}
	if !s.useColor {
		return name
	}
	return color + name + "\x1b[0m"
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" extra=%s", data)
}
