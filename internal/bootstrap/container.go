package bootstrap

import (
	"context"
	"log"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/config"
	"itinerary-collab-be/internal/controller"
	"itinerary-collab-be/internal/handler"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/pkg/serverutils"
	"itinerary-collab-be/internal/service"
	"itinerary-collab-be/internal/websocket"
	"itinerary-collab-be/pkg/llm/factory"

	pktNats "itinerary-collab-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	DocumentController controller.IDocumentController
	OpsController      controller.IOpsController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	CollabHandler *handler.CollabHandler
	WebSocketHub  *websocket.Hub

	Registry *collab.Registry
	Logger   logger.ILogger

	closers []func()
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	collabLogger := logger.NewIsolatedLogger(cfg.App.CollabLogFilePath)
	c.Logger = sysLogger
	c.closers = append(c.closers, func() {
		sysLogger.Sync()
		collabLogger.Sync()
	})

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1024},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	// NATS is optional; without it outward events are dropped.
	var bus service.EventBus
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			bus = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}
	eventPublisher := service.NewNatsEventPublisher(bus, sysLogger)

	// 3. Storage
	snapshots, closeStore, err := NewSnapshotRepository(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeStore)
	log.Printf("[INFO] Using snapshot backend: %s", cfg.Snapshot.Backend)

	// 4. Collaboration core
	observer := service.NewSessionObserver(pubSub, eventPublisher, collabLogger)
	registry := collab.NewRegistry(snapshots, collabLogger, observer)
	c.Registry = registry

	c.ConsumerService = service.NewSnapshotConsumer(pubSub, registry, cfg.Snapshot.CheckpointEvery, sysLogger)

	// 5. Services
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL)
	if err != nil {
		c.Close()
		return nil, err
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	generationService := service.NewGenerationService(registry, llmProvider, eventPublisher, cfg.Ai.GenerateTimeout, sysLogger)
	documentService := service.NewDocumentService(registry)

	// WebSocket Hub
	wsHub := websocket.NewHub(collabLogger)
	go wsHub.Run()
	c.WebSocketHub = wsHub
	c.closers = append(c.closers, wsHub.Stop)

	wsOpts := websocket.Options{
		SendBuffer:     cfg.Collab.SendBuffer,
		MaxMessageSize: cfg.Collab.MaxMessageSize,
	}
	c.CollabHandler = handler.NewCollabHandler(wsHub, registry, cfg.App.JwtSecret, wsOpts, collabLogger)

	// 6. Controllers
	auth := serverutils.JwtMiddleware(cfg.App.JwtSecret)
	c.DocumentController = controller.NewDocumentController(documentService, generationService, auth)
	c.OpsController = controller.NewOpsController(wsHub, registry, collabLogger, auth)

	return c, nil
}

// Close releases infrastructure in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
