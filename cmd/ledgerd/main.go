package main

import (
	"context"
	"log"
	"time"

	"ledgerd/internal/config"
	"ledgerd/internal/domain"
	"ledgerd/internal/infra/admission"
	"ledgerd/internal/infra/cachemem"
	"ledgerd/internal/infra/db"
	httpinfra "ledgerd/internal/infra/http"
	"ledgerd/internal/infra/metrics"
	"ledgerd/internal/infra/notary"
	"ledgerd/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var admissionEngine *admission.Engine
	if cfg.AdmissionBundlePath != "" {
		admissionEngine, err = admission.NewEngineFromBundlePath(ctx, cfg.AdmissionBundlePath)
		if err != nil {
			log.Fatalf("failed to load admission bundle: %v", err)
		}
	}

	policySvc := usecase.NewPolicyService(store.Policies, cachemem.New(), engineOrNil(admissionEngine), store.AuditEvents)
	ingestSvc := usecase.NewIngestService(store.Receipts, m)
	revocationSvc := usecase.NewRevocationService(store.Revocations, store.RevocationEpochs, store.AuditEvents)
	rehydrateSvc := usecase.NewRehydrateService(
		store.Receipts,
		store.Anchors,
		store.Proofs,
		policySvc,
		store.Revocations,
		store.RevocationEpochs,
		store.AuditEvents,
		m,
	)

	providers := cfg.Providers()
	batcher, err := usecase.NewAnchorBatcher(
		store.Receipts,
		store.Anchors,
		store.Proofs,
		store.PublishQueue,
		store.AuditEvents,
		m,
		providers,
		cfg.AnchorInterval(),
		cfg.AnchorThreshold,
	)
	if err != nil {
		log.Fatalf("failed to init anchor batcher: %v", err)
	}
	go func() {
		if err := batcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("anchor batcher exited: %v", err)
		}
	}()

	if len(providers) > 0 {
		notaries := make([]notary.Provider, 0, len(providers))
		for _, name := range providers {
			provider, err := notary.NewHTTPProvider(name, cfg.NotaryBaseURL, cfg.NotaryAPIKey, nil)
			if err != nil {
				log.Fatalf("failed to init notary provider %s: %v", name, err)
			}
			notaries = append(notaries, provider)
		}
		publisher, err := notary.NewPublisher(store.PublishQueue, store.Proofs, store.PublishAttempts, notaries, m, notary.PublisherConfig{
			Workers:        cfg.PublishWorkers,
			MaxAttempts:    cfg.PublishMaxAttempts,
			BaseBackoff:    time.Duration(cfg.PublishBaseBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.PublishMaxBackoffMS) * time.Millisecond,
			AttemptTimeout: time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
			PollInterval:   time.Duration(cfg.PublishPollSeconds) * time.Second,
		})
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		go func() {
			if err := publisher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Fatalf("publisher exited: %v", err)
			}
		}()
	}

	srv := httpinfra.NewServer(cfg, store, httpinfra.ServerDeps{
		Ingest:      ingestSvc,
		Policies:    policySvc,
		Rehydrate:   rehydrateSvc,
		Revocations: revocationSvc,
		Metrics:     m,
		Registry:    registry,
	})
	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// engineOrNil avoids handing a typed-nil AdmissionEngine to the policy
// service.
func engineOrNil(engine *admission.Engine) domain.AdmissionEngine {
	if engine == nil {
		return nil
	}
	return engine
}
