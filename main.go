package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"convo-service/internal/ai"
	"convo-service/internal/config"
	"convo-service/internal/db"
	"convo-service/internal/events"
	"convo-service/internal/handlers"
	"convo-service/internal/middleware"
	"convo-service/internal/observability"
	"convo-service/internal/rabbitmq"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
	"convo-service/internal/tracing"
	"convo-service/internal/ws"
)

const serviceName = "convo-service"

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			_ = shutdownTracing(context.Background())
		}()
	}

	if wsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.WSExchange); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(wsPublisher)
		defer wsPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.convo", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	completionClient := ai.NewClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.AITimeout)
	dispatcher := ai.NewDispatcher(completionClient, messageRepo, cfg.AIModel, cfg.AIMaxTokens, cfg.AITemperature)

	hub := ws.NewHub()

	bus := events.NewBus()
	bus.Subscribe(events.ConversationChanged{}.EventName(), func(ev events.Event) {
		if changed, ok := ev.(events.ConversationChanged); ok {
			hub.NotifyConversationChanged(changed.ParticipantIDs, changed.ConversationID)
		}
	})

	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, dispatcher, hub, bus, audit, cfg.AITimeout)

	threadWS := ws.NewThreadWebSocketHandler(hub, conversationRepo, cfg.JWTSecret)
	inboxWS := ws.NewInboxWebSocketHandler(hub, cfg.JWTSecret)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/ai-assistant", authMiddleware, messageHandler.Assist)

	router.GET("/ws/conversations/:conversation_id", threadWS.Handle)
	router.GET("/ws/inbox", inboxWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
