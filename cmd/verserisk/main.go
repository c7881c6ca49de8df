package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"VerseRisk/internal/config"
	"VerseRisk/internal/core"
	"VerseRisk/internal/crossval"
	"VerseRisk/internal/event"
	"VerseRisk/internal/ingestion"
	"VerseRisk/internal/observability"
	"VerseRisk/internal/oracle"
	"VerseRisk/internal/persistence"
	"VerseRisk/internal/projection"
	"VerseRisk/internal/query"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/server"
	"VerseRisk/internal/venue"
)

func main() {
	configPath := flag.String("config", os.Getenv("VERSE_CONFIG"), "path to YAML config")
	flag.Parse()

	log := observability.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)
	var restored *core.SnapshotState

	snapData, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot failed, cold start")
	}
	if snapData != nil {
		restored, err = snapData.ToCoreSnapshot()
		if err != nil {
			log.Fatal().Err(err).Int64("sequence", snapData.Sequence).Msg("snapshot decode failed")
		}
		startSequence = restored.Sequence + 1
		log.Info().Int64("sequence", restored.Sequence).Msg("loaded snapshot")
	} else {
		log.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks for backpressure; the projection and
	// notice channels drop on overflow.
	persistCoreChan := make(chan core.CoreOutput, cfg.Core.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Core.ProjectionChanSize)
	notifyChan := make(chan core.LiquidationNotice, cfg.Core.NotifyChanSize)

	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Core.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.Core.ProjectionChanSize)
	publishChan := make(chan ingestion.PublishableEvent, 4096)

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()
	audit := observability.NewAuditLogger(observability.NewLogger("audit"), metrics.AuditEvents)

	// --- Core ---
	authorities, err := cfg.AuthorityKeys()
	if err != nil {
		log.Fatal().Err(err).Msg("oracle authorities")
	}

	riskCore := core.NewRiskCore(core.Deps{
		StartSequence: startSequence,
		Config:        riskParams(cfg.Risk),
		OracleConfig: oracle.Config{
			MaxPriceAgeSlots:     cfg.Oracle.MaxPriceAgeSlots,
			MaxPriceDeviationBps: cfg.Oracle.MaxDeviationBps,
		},
		Authorities:         authorities,
		CrossvalConfig:      crossval.Config{},
		PersistChan:         persistCoreChan,
		ProjectionChan:      projectionCoreChan,
		NotifyChan:          notifyChan,
		DBChecker:           persistence.NewPostgresIdempotencyChecker(db),
		IdempotencyCapacity: cfg.Core.IdempotencyCapacity,
		Metrics:             metrics,
		Audit:               audit,
		Logger:              observability.NewLogger("core"),
	})

	if restored != nil {
		riskCore.RestoreFromSnapshot(restored)
		log.Info().Int64("sequence", restored.Sequence).Msg("restored in-memory state")
	}

	replayCount, err := replayEvents(ctx, snapMgr, riskCore, startSequence, log)
	if err != nil {
		log.Fatal().Err(err).Msg("event replay failed")
	}
	if replayCount > 0 {
		log.Info().Int64("count", replayCount).Int64("sequence", riskCore.Sequence()).Msg("replayed events")
	}

	if restored != nil && replayCount == 0 {
		if riskCore.StateHash() != restored.StateHash {
			log.Fatal().
				Hex("expected", restored.StateHash[:]).
				Msg("state hash mismatch after snapshot restore")
		}
		log.Info().Msg("state hash verified after restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	natsLog := observability.NewLogger("ingestion")
	if err := ingestion.EnsureStreams(ctx, js, natsLog); err != nil {
		log.Fatal().Err(err).Msg("ensure streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, natsLog); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawEventChan := make(chan ingestion.RawEvent, cfg.Core.RawEventChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawEventChan, natsLog)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	outbound := ingestion.NewOutboundPublisher(js, publishChan, observability.NewLogger("outbound"))
	notices := ingestion.NewNoticePublisher(js, notifyChan, observability.NewLogger("notices"))

	// --- Venue relayer (optional; needs a signing key and markets) ---
	signer, err := cfg.SignerKey()
	if err != nil {
		log.Fatal().Err(err).Msg("signer key")
	}
	var relayer *venue.Relayer
	if signer != nil && len(cfg.Venues.Markets) > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.Venues.RatePerSec), cfg.Venues.Burst)
		venues := []venue.Venue{
			venue.NewPolymarketClient(cfg.Venues.PolymarketBaseURL, limiter),
			venue.NewKalshiClient(cfg.Venues.KalshiBaseURL, limiter),
		}
		relayer = venue.NewRelayer(js, venues, cfg.Venues.Markets, cfg.Venues.PollInterval,
			signer, observability.NewLogger("relayer"))
	}

	// --- Query + HTTP ---
	history := projection.NewLiquidationHistory()
	queryService := query.NewQueryService(riskCore, db, history, venue.SlotLength)
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, &server.Deps{
		Query:         queryService,
		SnapshotMgr:   snapMgr,
		DB:            db,
		HealthChecker: healthChecker,
		Logger:        observability.NewLogger("http"),
	})

	// --- Workers ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan,
		cfg.Core.PersistBatchSize, cfg.Core.PersistFlushTimeout, metrics,
		observability.NewLogger("persistence"))
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan, history,
		observability.NewLogger("projection"))
	go func() { errChan <- projWorker.Run(ctx) }()

	go func() { errChan <- outbound.Run(ctx) }()
	go func() { errChan <- notices.Run(ctx) }()

	go bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan,
		persistWorkerChan, projectionWorkerChan, publishChan)

	go runIngestionLoop(ctx, rawEventChan, riskCore, cfg.Core.RawEventChanSize, log)

	if relayer != nil {
		go func() { errChan <- relayer.Run(ctx) }()
	}

	go func() { errChan <- httpServer.Start(ctx) }()

	go serveMetrics(ctx, cfg.HTTP.MetricsAddr, errChan, log)

	go runPeriodicSnapshots(ctx, riskCore, snapMgr, cfg.Core.SnapshotInterval, metrics, log)

	healthChecker.SetReady(true)
	log.Info().
		Int64("sequence", startSequence).
		Str("http", cfg.HTTP.Addr).
		Str("metrics", cfg.HTTP.MetricsAddr).
		Msg("verserisk ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cancel()
	subscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, riskCore, snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("shutdown complete")
}

// riskParams maps file configuration onto the core's parameter block.
func riskParams(rc config.RiskConfig) risk.GlobalConfig {
	p := risk.DefaultConfig()
	if rc.MaxPriceAgeSlots > 0 {
		p.MaxPriceAgeSlots = rc.MaxPriceAgeSlots
	}
	if rc.WarningThreshold > 0 {
		p.WarningThreshold = rc.WarningThreshold
	}
	if rc.CriticalThreshold > 0 {
		p.CriticalThreshold = rc.CriticalThreshold
	}
	if rc.MaintenanceFactor > 0 {
		p.MaintenanceFactor = rc.MaintenanceFactor
	}
	if rc.MaxEffectiveLeverage > 0 {
		p.MaxEffectiveLeverage = rc.MaxEffectiveLeverage
	}
	if rc.PartialBps > 0 {
		p.PartialBps = rc.PartialBps
	}
	if rc.EmergencyBps > 0 {
		p.EmergencyBps = rc.EmergencyBps
	}
	if rc.LiquidationCooldownSlots > 0 {
		p.LiquidationCooldownSlots = rc.LiquidationCooldownSlots
	}
	if rc.KeeperRewardBps > 0 {
		p.KeeperRewardBps = rc.KeeperRewardBps
	}
	if rc.StopBountyBps > 0 {
		p.StopBountyBps = rc.StopBountyBps
	}
	if rc.SlashBps > 0 {
		p.SlashBps = rc.SlashBps
	}
	return p
}

// bridgeCoreOutputs fans core outputs out to the persistence, projection
// and outbound formats. Lives here to keep core free of worker imports.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			env := output.Envelope
			pOutput := persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       env.Sequence,
					EventType:      env.EventType.String(),
					IdempotencyKey: env.IdempotencyKey,
					MarketID:       env.MarketID,
					Payload:        env.Payload,
					StateHash:      env.StateHash[:],
					PrevHash:       env.PrevHash[:],
					Timestamp:      env.Timestamp,
					SourceSequence: env.SourceSequence,
				},
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalRows = append(pOutput.JournalRows, persistence.JournalRow{
						JournalID:     j.JournalID.String(),
						BatchID:       j.BatchID.String(),
						EventRef:      j.EventRef,
						Sequence:      j.Sequence,
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			persistOut <- pOutput

			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       env.Sequence,
				EventType:      env.EventType.String(),
				IdempotencyKey: env.IdempotencyKey,
				MarketID:       env.MarketID,
				Payload:        output.Batch,
				StateHash:      env.StateHash[:],
				Timestamp:      env.Timestamp,
			}:
			default:
				// Outbound is best effort; the event log is authoritative.
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			env := output.Envelope
			pOutput := projection.ProjectionOutput{
				Sequence:  env.Sequence,
				EventType: env.EventType.String(),
				MarketID:  env.MarketID,
				Timestamp: env.Timestamp.UnixMicro(),
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalEntries = append(pOutput.JournalEntries, projection.JournalEntry{
						JournalID:     j.JournalID.String(),
						EventRef:      j.EventRef,
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
					})
				}
			}

			select {
			case projectionOut <- pOutput:
			default:
				// Projections rebuild from the log; dropping is safe.
			}
		}
	}
}

// runIngestionLoop parses raw NATS messages and drives the core. Messages
// are acked after the parsed event is queued, not after core processing, so
// backpressure propagates through the channel instead of AckWait expiry.
func runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, riskCore *core.RiskCore, chanSize int, log zerolog.Logger) {
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.EventType
	}

	typedEventChan := make(chan event.Event, chanSize)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedEventChan)
					return
				}

				eventType := resolveEventType(raw.Subject, subjectToType)
				if eventType == "" {
					log.Warn().Str("subject", raw.Subject).Msg("unknown subject")
					raw.AckFunc()
					continue
				}

				evt, err := ingestion.ParseRawEvent(raw, eventType)
				if err != nil {
					// Acked anyway: redelivering a malformed message only loops.
					log.Warn().Err(err).Str("subject", raw.Subject).Msg("parse failed")
					raw.AckFunc()
					continue
				}

				select {
				case typedEventChan <- evt:
					raw.AckFunc()
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-typedEventChan:
			if !ok {
				return
			}

			if err := riskCore.ProcessEvent(evt); err != nil {
				log.Error().Err(err).
					Str("event_type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("process event failed")
			}
		}
	}
}

// resolveEventType matches the longest configured subject prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// replayEvents feeds logged events back through the core from fromSequence
// to the head. Duplicates and sequence skips are expected and ignored.
func replayEvents(ctx context.Context, snapMgr *persistence.SnapshotManager, riskCore *core.RiskCore, fromSequence int64, log zerolog.Logger) (int64, error) {
	const batchSize = 1000
	var total int64

	for {
		rows, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return total, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			evt, err := event.Unmarshal(event.TypeFromString(row.EventType), row.Payload)
			if err != nil {
				log.Warn().Err(err).Int64("sequence", row.Sequence).Str("event_type", row.EventType).
					Msg("skip undecodable event")
				continue
			}

			if err := riskCore.ProcessEvent(evt); err != nil {
				log.Debug().Err(err).Int64("sequence", row.Sequence).Msg("replay skip")
			}
			total++
		}

		fromSequence = rows[len(rows)-1].Sequence + 1
	}

	return total, nil
}

// runPeriodicSnapshots persists a state snapshot every interval events.
func runPeriodicSnapshots(ctx context.Context, riskCore *core.RiskCore, snapMgr *persistence.SnapshotManager, interval int64, metrics *observability.Metrics, log zerolog.Logger) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := riskCore.Sequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := riskCore.Sequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, riskCore, snapMgr, metrics); err != nil {
					log.Warn().Err(err).Msg("periodic snapshot failed")
					continue
				}
				lastSnapshotSeq = currentSeq
				log.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
			}
		}
	}
}

// takeSnapshot captures the core state and persists it verified, since it
// came from live state rather than recovery.
func takeSnapshot(ctx context.Context, riskCore *core.RiskCore, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) error {
	start := time.Now()

	snapData, err := persistence.FromCoreSnapshot(riskCore.CreateSnapshotState())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}
	return nil
}

// serveMetrics runs the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, errChan chan<- error, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server: %w", err)
	}
}
