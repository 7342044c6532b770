package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"classroom-lock/client/internal/config"
	"classroom-lock/client/internal/db"
	devicesvc "classroom-lock/client/internal/device/service"
	identitysvc "classroom-lock/client/internal/identity/service"
	"classroom-lock/client/internal/keystore"
	"classroom-lock/client/internal/ledger"
	"classroom-lock/client/internal/mdm"
	"classroom-lock/client/internal/policy/engine"
	"classroom-lock/client/internal/reachability"
	sessionrepo "classroom-lock/client/internal/session/repository"
	"classroom-lock/client/internal/telemetry"
	"classroom-lock/client/internal/telemetry/otel"
	"classroom-lock/client/internal/telemetry/producer"
)

// app holds the services of one CLI invocation. Every component is constructed here and
// passed explicitly to whoever needs it.
type app struct {
	cfg        *config.Config
	client     *mdm.Client
	monitor    *reachability.Monitor
	auth       *identitysvc.Manager
	selection  *ledger.SelectionLedger
	visibility *ledger.VisibilityLedger
	catalog    *devicesvc.Catalog
	locks      *devicesvc.LockService

	// validated is closed when background token validation has finished.
	validated <-chan struct{}
	drain     bool
	closers   []func(context.Context) error
	cancel    context.CancelFunc
}

// newApp wires the client and runs the startup sequence: the cached session is loaded
// synchronously and validated in the background once the API host is reachable.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ctx, a.cancel = context.WithCancel(ctx)
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	emitter, err := a.setupTelemetry(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.KeystorePassphrase == "" {
		return nil, errors.New("KEYSTORE_PASSPHRASE must be set")
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	ks, err := keystore.OpenFileKeystore(filepath.Join(cfg.StateDir, "keystore.json"), cfg.KeystorePassphrase)
	if err != nil {
		return nil, err
	}

	a.client = mdm.NewClient(cfg.MDMBaseURL, cfg.MDMNetworkID, cfg.MDMAPIKey, cfg.MDMAPIVersion, cfg.HTTPTimeout())
	a.client.SetRateLimit(cfg.MDMRateLimit, cfg.MDMRateBurst)

	addr, err := reachability.ProbeAddr(cfg.MDMBaseURL)
	if err != nil {
		return nil, err
	}
	a.monitor = reachability.NewMonitor(reachability.DialProber{Addr: addr})
	go a.monitor.Run(ctx, cfg.ReachabilityPollInterval())

	store, err := a.openBlobStore()
	if err != nil {
		return nil, err
	}
	if a.selection, err = ledger.NewSelectionLedger(ctx, store); err != nil {
		return nil, err
	}
	if a.visibility, err = ledger.NewVisibilityLedger(ctx, store); err != nil {
		return nil, err
	}

	policy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.LockPolicyFile)
	if err != nil {
		return nil, err
	}
	if cfg.LockPolicyFile != "" {
		if err := policy.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.LockPolicyFile, err)
		}
	}

	a.auth = identitysvc.NewManager(a.client, a.monitor, sessionrepo.NewSecureRepository(ks), identitysvc.Options{
		ValidationTimeout:       cfg.ValidationTimeout(),
		ValidationRetryInterval: cfg.ValidationRetryInterval(),
		Emitter:                 emitter,
	})
	a.catalog = devicesvc.NewCatalog(a.client, a.visibility)
	a.locks = devicesvc.NewLockService(a.client, a.selection, devicesvc.Options{
		OwnerUserID: cfg.LockOwnerUserID,
		StudentID:   cfg.LockStudentID,
		ClearAfter:  cfg.ClearAfter(),
		Policy:      policy,
		Hidden:      a.visibility,
		Emitter:     emitter,
	})

	a.validated = a.auth.Start(ctx)
	ok = true
	return a, nil
}

func (a *app) setupTelemetry(ctx context.Context) (telemetry.EventEmitter, error) {
	providers, err := otel.NewProviders(ctx, a.cfg.OTLPEndpoint, "classlock", a.cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)

	emitters := telemetry.Multi{}
	if a.cfg.OTLPEndpoint != "" {
		emitters = append(emitters, otel.NewEventEmitter(providers.LoggerProvider))
		a.drain = true
	}
	kafkaProducer, err := producer.NewKafkaProducer(a.cfg.KafkaBrokersList(), a.cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		a.closers = append(a.closers, func(context.Context) error { return kafkaProducer.Close() })
		a.drain = true
	}
	if len(emitters) == 0 {
		return nil, nil
	}
	return emitters, nil
}

func (a *app) openBlobStore() (ledger.BlobStore, error) {
	if a.cfg.LedgerBackend != config.LedgerBackendPostgres {
		return ledger.NewFileBlobStore(filepath.Join(a.cfg.StateDir, "ledger")), nil
	}
	conn, err := db.Open(a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
	return ledger.NewPostgresBlobStore(conn), nil
}

// waitValidated blocks until background validation finishes or ctx is done.
func (a *app) waitValidated(ctx context.Context) {
	if a.validated == nil {
		return
	}
	select {
	case <-a.validated:
	case <-ctx.Done():
	}
}

// close stops background work and flushes telemetry. In-flight async emits get
// telemetry.ShutdownDrainDuration to finish when an exporter is configured.
func (a *app) close(ctx context.Context) {
	if a.drain {
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Printf("classlock: shutdown: %v", err)
		}
	}
}

// requireAuth returns an error when no session is active.
func (a *app) requireAuth() error {
	if !a.auth.IsAuthenticated() {
		return errors.New("not logged in; run 'classlock login' first")
	}
	return nil
}
