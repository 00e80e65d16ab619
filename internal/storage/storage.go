// Package storage assembles every store on top of one shared connection pool.
//
// Storage is the ownership root: it opens the pool once, hands the same
// *postgres.DB to each repository and closes it on shutdown. Repositories
// never manage connections themselves.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/msgstore/internal/blob"
	"github.com/and161185/msgstore/internal/config"
	"github.com/and161185/msgstore/internal/errs"
	"github.com/and161185/msgstore/internal/limiter"
	"github.com/and161185/msgstore/internal/repository"
	"github.com/and161185/msgstore/internal/repository/postgres"
)

// Storage groups the stores used by the transport layer.
type Storage struct {
	DB          *postgres.DB
	Stanzas     repository.StanzaRepository
	Presence    repository.PresenceRepository
	Network     *repository.CachedNetwork
	Validations repository.ValidationRepository
	Files       blob.Store
	Attempts    limiter.Limiter // nil disables redemption throttling

	log *zap.Logger
}

// Options tunes the stores built by New.
type Options struct {
	FederationTTL time.Duration
	CodeLength    int

	// Redemption throttling; MaxFails <= 0 disables it.
	RedeemMaxFails int
	RedeemWindow   time.Duration
	RedeemBlock    time.Duration
}

// New builds the stores over an existing pool and blob backend.
func New(db *postgres.DB, files blob.Store, opts Options, log *zap.Logger) *Storage {
	s := &Storage{
		DB:          db,
		Stanzas:     postgres.NewStanzaRepo(db),
		Presence:    postgres.NewPresenceRepo(db),
		Network:     repository.NewCachedNetwork(postgres.NewNetworkRepo(db), opts.FederationTTL),
		Validations: postgres.NewValidationRepo(db, opts.CodeLength),
		Files:       files,
		log:         log,
	}
	if opts.RedeemMaxFails > 0 {
		s.Attempts = limiter.NewPG(db.Pool, opts.RedeemWindow, opts.RedeemMaxFails, opts.RedeemBlock)
	}
	return s
}

// Open creates the pool and the blob backend described by cfg and initializes
// the blob backend. It must be called once per process.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Storage, error) {
	pc := postgres.PoolConfig{
		DSN:         cfg.DSN(),
		MaxConns:    int32(cfg.MaxConns),
		HealthCheck: 30 * time.Second,
	}
	if cfg.LogQueries {
		pc.Logger = log.Named("pgx")
	}
	db, err := postgres.Open(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	files, err := newBlobStore(ctx, cfg, log.Named("blob"))
	if err != nil {
		db.Close()
		return nil, err
	}
	s := New(db, files, Options{
		FederationTTL:  cfg.FederationTTL,
		CodeLength:     cfg.CodeLength,
		RedeemMaxFails: cfg.RedeemMaxFails,
		RedeemWindow:   cfg.RedeemWindow,
		RedeemBlock:    cfg.RedeemBlock,
	}, log)
	if err := s.Files.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	log.Info("storage ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dbname", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
		zap.String("blob_backend", cfg.BlobBackend),
	)
	return s, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		client, err := blob.NewS3Client(ctx, blob.S3Config{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return blob.NewS3(client, cfg.S3Bucket, cfg.S3Prefix, log), nil
	default:
		return blob.NewDisk(cfg.BlobRoot, log), nil
	}
}

// Redeem validates code on behalf of source (typically the client address).
// Repeated invalid codes from one source block it for a while; a blocked
// source gets errs.ErrThrottled without the code being looked at. An empty
// source or a disabled limiter redeems directly.
func (s *Storage) Redeem(ctx context.Context, source, code string) (string, error) {
	if s.Attempts == nil || source == "" {
		return s.Validations.Validate(ctx, code)
	}
	ok, wait, err := s.Attempts.Allow(ctx, source)
	if err != nil {
		return "", fmt.Errorf("redeem limiter: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("retry in %s: %w", wait.Round(time.Second), errs.ErrThrottled)
	}

	key, err := s.Validations.Validate(ctx, code)
	switch {
	case err == nil:
		if lerr := s.Attempts.Success(ctx, source); lerr != nil {
			s.log.Warn("reset redeem attempts", zap.Error(lerr))
		}
		return key, nil
	case errors.Is(err, errs.ErrInvalidCode):
		blocked, wait, lerr := s.Attempts.Failure(ctx, source)
		if lerr != nil {
			s.log.Warn("record redeem failure", zap.Error(lerr))
		} else if blocked {
			s.log.Info("redeem source blocked", zap.Duration("for", wait))
		}
		return "", err
	default:
		return "", err
	}
}

// Close releases the pool. Stores must not be used afterwards.
func (s *Storage) Close() {
	s.DB.Close()
	s.log.Info("storage closed")
}
