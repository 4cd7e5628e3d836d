package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"auditflow/backend/internal/config"
	"auditflow/backend/internal/db"
	"auditflow/backend/internal/escalation"
	findingrepo "auditflow/backend/internal/finding/repository"
	healthhandler "auditflow/backend/internal/health/handler"
	"auditflow/backend/internal/ledger"
	ledgerrepo "auditflow/backend/internal/ledger/repository"
	"auditflow/backend/internal/notification"
	"auditflow/backend/internal/policy/engine"
	policyrepo "auditflow/backend/internal/policy/repository"
	policyservice "auditflow/backend/internal/policy/service"
	"auditflow/backend/internal/projection"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	"auditflow/backend/internal/server"
	submissionrepo "auditflow/backend/internal/submission/repository"
	"auditflow/backend/internal/telemetry"
	otelemit "auditflow/backend/internal/telemetry/otel"
	"auditflow/backend/internal/telemetry/producer"
	"auditflow/backend/internal/validation"
	validationrepo "auditflow/backend/internal/validation/repository"
	"auditflow/backend/internal/workflow"
	workflowrepo "auditflow/backend/internal/workflow/repository"
)

const (
	inboxSize      = 200
	healthInterval = 10 * time.Second
	shutdownGrace  = 15 * time.Second
)

type stores struct {
	conn         *sql.DB
	tx           db.TxRunner
	blocks       ledgerrepo.Repository
	requirements requirementrepo.Repository
	submissions  submissionrepo.Repository
	findings     findingrepo.Repository
	requests     workflowrepo.RequestRepository
	jobs         validationrepo.Repository
	policies     policyrepo.Repository
}

// openStores returns Postgres-backed stores when DATABASE_URL is set, in-memory ones otherwise.
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Println("server: DATABASE_URL not set, using in-memory stores")
		return &stores{
			blocks:       ledgerrepo.NewMemoryRepository(),
			requirements: requirementrepo.NewMemoryRepository(),
			submissions:  submissionrepo.NewMemoryRepository(),
			findings:     findingrepo.NewMemoryRepository(),
			requests:     workflowrepo.NewMemoryRequestRepository(),
			jobs:         validationrepo.NewMemoryRepository(),
			policies:     policyrepo.NewMemoryRepository(),
		}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		conn:         conn,
		tx:           db.NewTxManager(conn),
		blocks:       ledgerrepo.NewPostgresRepository(conn),
		requirements: requirementrepo.NewPostgresRepository(conn),
		submissions:  submissionrepo.NewPostgresRepository(conn),
		findings:     findingrepo.NewPostgresRepository(conn),
		requests:     workflowrepo.NewPostgresRequestRepository(conn),
		jobs:         validationrepo.NewPostgresRepository(conn),
		policies:     policyrepo.NewPostgresRepository(conn),
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelemit.NewProviders(ctx, otelemit.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel: shutdown: %v", err)
		}
	}()

	st, err := openStores(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if st.conn != nil {
		defer st.conn.Close()
	}

	authz, err := engine.NewOPAEvaluator(st.policies)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	l := ledger.New(st.blocks, st.tx)
	eng := workflow.NewEngine(st.requirements, st.submissions, st.findings, st.requests, l, st.tx, authz)
	orchestrator := validation.New(eng, st.jobs, nil, validation.Config{
		ScoreThreshold:           cfg.AIScoreThreshold,
		AutoReview:               cfg.AIAutoReview,
		AutoApproveScore:         cfg.AIAutoApproveScore,
		AutoApproveMinConfidence: cfg.AIAutoApproveMinConfidence,
	})

	// Ledger observers run after commit: validation intake, notifications, then event export.
	l.AddObserver(orchestrator)

	inbox := notification.NewInbox(inboxSize)
	var remote []notification.Notifier
	if cfg.RabbitMQURL != "" {
		rabbit, err := notification.NewRabbitPublisher(cfg.RabbitMQURL, cfg.NotificationQueue)
		if err != nil {
			log.Fatalf("notification: %v", err)
		}
		defer rabbit.Close()
		remote = append(remote, rabbit)
	}
	l.AddObserver(notification.NewObserver(inbox, remote...))

	emitters := []telemetry.EventEmitter{otelemit.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.WorkflowEventsTopic); kp != nil {
		defer kp.Close()
		emitters = append(emitters, kp)
	}
	l.AddObserver(telemetry.NewObserver(emitters...))

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.AIValidationMode {
	case config.AIModeHTTP:
		d := validation.NewHTTPDispatcher(cfg.AIValidatorURL, orchestrator, validation.HTTPConfig{
			MaxConcurrentJobs: cfg.AIMaxConcurrentJobs,
			MaxRetries:        cfg.AIMaxRetries,
			Timeout:           cfg.JobTimeout(),
		})
		orchestrator.UseDispatcher(d)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := d.Close(closeCtx); err != nil {
				log.Printf("validation: close dispatcher: %v", err)
			}
		}()
	case config.AIModeKafka:
		d := validation.NewKafkaDispatcher(cfg.KafkaBrokersList(), cfg.AIJobsTopic)
		orchestrator.UseDispatcher(d)
		defer d.Close()
		consumer := validation.NewResultConsumer(cfg.KafkaBrokersList(), cfg.AIResultsTopic, cfg.KafkaGroupID, orchestrator)
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx) })
	default:
		log.Println("validation: no dispatcher configured, results arrive through the callback")
	}
	g.Go(func() error { return orchestrator.Run(gctx) })

	scheduler := escalation.New(eng, st.requirements, st.findings, escalation.Config{
		Interval:      cfg.EscalationStep(),
		MaxLevel:      cfg.EscalationMaxLevel,
		WarningWindow: cfg.WarningWindow(),
	})
	g.Go(func() error { return escalation.NewRunner(scheduler, cfg.EscalationSchedule).Run(gctx) })

	facade, err := projection.New(l, st.requirements, st.submissions, st.findings, inbox, cfg.ProjectionCacheSize)
	if err != nil {
		log.Fatalf("projection: %v", err)
	}

	var pinger healthhandler.Pinger
	if st.conn != nil {
		pinger = st.conn
	}
	checker := healthhandler.NewChecker(pinger, authz)
	healthServer := healthhandler.NewGRPCServer()
	g.Go(func() error { return checker.Watch(gctx, healthServer, healthInterval) })

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Engine:       eng,
			Orchestrator: orchestrator,
			Projection:   facade,
			Policies:     policyservice.NewPolicyService(st.policies, authz, authz, st.tx),
			Health:       checker,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcServer := server.NewGRPCServer(healthServer)
	g.Go(func() error {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Println("server stopped")
}
