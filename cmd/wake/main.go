package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"driftline/internal/content"
	"driftline/internal/graph"
	"driftline/internal/handlers"
	"driftline/internal/ingest"
	"driftline/internal/metrics"
	"driftline/internal/rollup"
	"driftline/internal/store"
	"driftline/internal/suggest"
	"driftline/pkg/auth"
	"driftline/pkg/clients/spyglass"
	"driftline/pkg/config"
	"driftline/pkg/database"
	"driftline/pkg/kafka"
	"driftline/pkg/logging"
	"driftline/pkg/monitoring"
	"driftline/pkg/server"
	"driftline/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("wake")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Wake (Content Relationship Graph API)")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.GetEnv("DATABASE_URL", "")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_AUTO_MIGRATE", false) {
		if err := database.ApplySchema(context.Background(), db, "schema/wake.sql", logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("wake", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("wake", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  config.GetEnv("DATABASE_URL", ""),
		"SERVICE_TOKEN": config.GetEnv("SERVICE_TOKEN", ""),
	}))

	// Graph engine metrics
	serviceMetrics := &metrics.Metrics{
		RelationshipOps:    metricsCollector.NewCounter("relationship_operations_total", "Relationship mutations by operation and status", []string{"operation", "status"}),
		CycleChecks:        metricsCollector.NewCounter("cycle_checks_total", "Cycle guard verdicts", []string{"outcome"}),
		TraversalDuration:  metricsCollector.NewHistogram("graph_traversal_duration_seconds", "Graph traversal time", []string{"operation"}, nil),
		TraversalNodes:     metricsCollector.NewHistogram("graph_traversal_nodes", "Nodes visited per traversal", []string{"operation"}, []float64{1, 10, 50, 100, 500, 1000, 5000}),
		PathRecomputeRows:  metricsCollector.NewHistogram("path_recompute_rows", "Descendant paths rewritten per mutation", []string{"operation"}, []float64{0, 1, 10, 50, 100, 500}),
		Suggestions:        metricsCollector.NewCounter("suggestions_total", "Suggestion pipeline outcomes", []string{"outcome"}),
		ClassifierRequests: metricsCollector.NewCounter("classifier_requests_total", "Spyglass classification calls", []string{"status"}),
		ClassifierLatency:  metricsCollector.NewHistogram("classifier_request_duration_seconds", "Spyglass call latency", []string{"status"}, nil),
		IngestEvents:       metricsCollector.NewCounter("link_ingest_events_total", "Platform link events by outcome", []string{"outcome"}),
	}

	// Content catalog access (read-only, cached)
	contentRepo := content.NewCachedRepository(
		content.NewPostgresRepository(db, logger),
		config.GetEnvDuration("CONTENT_CACHE_TTL", 2*time.Minute),
		4096,
	)

	// Relationship store and cycle guard
	relStore := store.New(db, contentRepo, logger)
	relStore.SetMetrics(serviceMetrics)

	guard := graph.NewGuard(relStore, graph.GuardConfig{
		MaxDepth: config.GetEnvInt("MAX_TRAVERSAL_DEPTH", 50),
		MaxNodes: config.GetEnvInt("MAX_TRAVERSAL_NODES", 5000),
	}, logger)
	guard.SetMetrics(serviceMetrics)
	relStore.SetCycleGuard(guard)

	// Family assembly, rollup, export
	builder := graph.NewBuilder(relStore, contentRepo, graph.FamilyOptions{
		MaxDepth: config.GetEnvInt("MAX_FAMILY_DEPTH", 50),
		MaxNodes: config.GetEnvInt("MAX_FAMILY_NODES", 5000),
	})
	builder.SetMetrics(serviceMetrics)

	rollupConfig, err := rollup.LoadConfig(config.GetEnv("ROLLUP_CONFIG_FILE", ""))
	if err != nil {
		logger.WithError(err).Fatal("Failed to load rollup configuration")
	}
	aggregator := rollup.NewAggregator(rollupConfig)
	exporter := graph.NewExporter()

	// Suggestion pipeline, with spyglass when configured
	var classifier suggest.Classifier
	classifierURL := config.GetEnv("CLASSIFIER_URL", "")
	if classifierURL != "" {
		classifier = spyglass.NewClient(spyglass.Config{
			BaseURL:      classifierURL,
			ServiceToken: config.GetEnv("CLASSIFIER_TOKEN", ""),
			Timeout:      config.GetEnvDuration("CLASSIFIER_TIMEOUT", 5*time.Second),
			Logger:       logger,
		})
		healthChecker.AddCheck("classifier", monitoring.HTTPServiceHealthCheck("spyglass", classifierURL+"/health"))
	} else {
		logger.Warn("CLASSIFIER_URL not set - suggestions run on heuristics only")
	}

	suggester := suggest.New(contentRepo, relStore, classifier, suggest.Config{
		DefaultThreshold:    config.GetEnvFloat("SUGGESTION_THRESHOLD", 0.7),
		MaxCandidates:       config.GetEnvInt("SUGGESTION_MAX_CANDIDATES", 25),
		MaxClassify:         config.GetEnvInt("SUGGESTION_MAX_CLASSIFY", 8),
		CacheTTL:            config.GetEnvDuration("SUGGESTION_CACHE_TTL", 10*time.Minute),
		AutoAcceptEnabled:   config.GetEnvBool("AUTO_ACCEPT_ENABLED", false),
		AutoAcceptThreshold: config.GetEnvFloat("AUTO_ACCEPT_THRESHOLD", 0.95),
	}, logger)
	suggester.SetMetrics(serviceMetrics)

	// Any committed edge mutation stales the suggestion cache for both
	// endpoints and the content cache entries backing them.
	relStore.OnMutation(func(sourceID, targetID string) {
		suggester.Invalidate(sourceID)
		suggester.Invalidate(targetID)
		contentRepo.Invalidate(sourceID)
		contentRepo.Invalidate(targetID)
	})

	// Initialize handlers
	handlers.Init(relStore, builder, aggregator, exporter, suggester, logger)

	// Optional platform link ingest
	brokersEnv := config.GetEnv("KAFKA_BROKERS", "")
	if brokersEnv != "" {
		processor := ingest.NewProcessor(relStore, ingest.Config{
			AutoCreate:          config.GetEnvBool("PLATFORM_AUTO_CREATE", false),
			AutoCreateThreshold: config.GetEnvFloat("PLATFORM_AUTO_CREATE_THRESHOLD", 0.9),
		}, logger)
		processor.SetMetrics(serviceMetrics)

		consumer, err := kafka.NewConsumer(
			strings.Split(brokersEnv, ","),
			config.GetEnv("KAFKA_GROUP_ID", "wake-link-events"),
			config.GetEnv("CLUSTER_ID", "local"),
			"wake",
			logger,
		)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}

		ingestService := ingest.NewService(consumer, processor, nil, logger)
		ingestService.Register(config.GetEnv("KAFKA_TOPIC_LINK_EVENTS", "platform_link_events"))
		defer ingestService.Close()

		healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := ingestService.Start(ctx); err != nil {
				logger.WithError(err).Error("Link event consumer error")
			}
		}()
		logger.Info("Platform link ingest enabled")
	}

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "wake", healthChecker, metricsCollector)

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetInfo())
	})

	// Protected routes (require service token authentication)
	protected := router.Group("/api")
	protected.Use(auth.ServiceAuthMiddleware(config.GetEnv("SERVICE_TOKEN", "default-service-token")))
	{
		protected.POST("/relationships", handlers.CreateRelationship)
		protected.GET("/relationships/:id", handlers.GetRelationship)
		protected.PUT("/relationships/:id", handlers.UpdateRelationship)
		protected.POST("/relationships/:id/confirm", handlers.ConfirmRelationship)
		protected.DELETE("/relationships/:id", handlers.DeleteRelationship)

		protected.GET("/content/:id/relationships", handlers.ListContentRelationships)
		protected.GET("/content/:id/family", handlers.GetFamily)
		protected.GET("/content/:id/family/metrics", handlers.GetFamilyMetrics)
		protected.GET("/content/:id/family/export", handlers.ExportFamily)
		protected.GET("/content/:id/suggestions", handlers.GetSuggestions)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("wake", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
