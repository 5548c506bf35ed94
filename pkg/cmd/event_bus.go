package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dandpb/jung-edu-app-sub012/pkg/channels/gochannel"
	"github.com/dandpb/jung-edu-app-sub012/pkg/channels/kafka"
	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider. Kafka reads its
// brokers from KAFKA_BROKERS; gochannel is in-process only and suits a single
// binary running API and worker together.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "eduflow")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
