package audit

import (
	"context"
	"errors"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/types"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// LogSink writes audit events to the process log.
type LogSink struct{}

func (LogSink) Record(_ context.Context, ev types.AuditEvent) error {
	log.WithFields(log.Fields{
		"audit":      ev.Type,
		"externalID": ev.ExternalID,
		"steamID":    ev.SteamID,
	}).Info(ev.Message)
	return nil
}

// SNSSink publishes audit events as JSON to an SNS topic. When Filter is set, only events for
// which the JMESPath expression yields true are published.
type SNSSink struct {
	Pub      ports.Publisher
	TopicArn string
	Filter   string
}

func NewSNSSink(pub ports.Publisher, topicArn, filter string) *SNSSink {
	return &SNSSink{Pub: pub, TopicArn: topicArn, Filter: filter}
}

func (s *SNSSink) Record(ctx context.Context, ev types.AuditEvent) error {
	ok, err := Match(s.Filter, ev)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Pub.PublishRaw(ctx, s.TopicArn, b)
}

// Multi fans an event out to every sink. All sinks are tried; errors are joined.
type Multi []ports.AuditSink

func (m Multi) Record(ctx context.Context, ev types.AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
