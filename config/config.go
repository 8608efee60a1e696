// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package config loads wba-identity settings from the environment. A .env
// file in the working directory is read once, without overriding variables
// that are already set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/aumos-ai/wba-identity/auth"
	"github.com/aumos-ai/wba-identity/hosted"
	"github.com/aumos-ai/wba-identity/identity"
	"github.com/aumos-ai/wba-identity/session"
)

// Config captures environment-driven settings.
type Config struct {
	Env            string        // WBA_ENV: dev, staging, prod
	Domain         string        // WBA_DOMAIN: hosting domain
	Port           int           // WBA_PORT: 0, 80 and 443 mean the default port
	NonceWindow    time.Duration // WBA_NONCE_EXPIRY_MINUTES
	TokenTTL       time.Duration // WBA_TOKEN_TTL_MINUTES
	CredentialTTL  time.Duration // WBA_CREDENTIAL_TTL_MINUTES
	TokenAlgorithm string        // WBA_TOKEN_ALGORITHM
	SubjectTypes   []string      // WBA_SUBJECT_TYPES, comma separated
	QueueDir       string        // WBA_QUEUE_DIR
	ResultDB       string        // WBA_RESULT_DB
	DIDCacheTTL    time.Duration // WBA_DID_CACHE_MINUTES
	PollInterval   time.Duration // WBA_POLL_INTERVAL_SECONDS
	PollAttempts   int           // WBA_POLL_MAX_ATTEMPTS
	// EstimatedProcessing is advertised to hosted-DID submitters.
	EstimatedProcessing time.Duration // WBA_ESTIMATED_PROCESSING_SECONDS
}

const (
	defaultEnv          = "dev"
	defaultDomain       = "localhost"
	defaultQueueDir     = "./data/hosted"
	defaultResultDB     = "./data/results"
	defaultSubjectTypes = "user,agent,hostuser"
)

var dotenvOnce sync.Once

func loadDotenv() {
	dotenvOnce.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		if err := godotenv.Load(); err != nil {
			slog.Warn("failed to load .env file", "err", err)
		}
	})
}

// Load reads the environment and returns a validated Config.
func Load() (Config, error) {
	loadDotenv()

	var errs []error
	minutes := func(key string, def int) time.Duration {
		n, err := intVar(key, def)
		errs = append(errs, err)
		return time.Duration(n) * time.Minute
	}
	seconds := func(key string, def int) time.Duration {
		n, err := intVar(key, def)
		errs = append(errs, err)
		return time.Duration(n) * time.Second
	}

	cfg := Config{
		Env:                 stringVar("WBA_ENV", defaultEnv),
		Domain:              stringVar("WBA_DOMAIN", defaultDomain),
		NonceWindow:         minutes("WBA_NONCE_EXPIRY_MINUTES", 5),
		TokenTTL:            minutes("WBA_TOKEN_TTL_MINUTES", 60),
		CredentialTTL:       minutes("WBA_CREDENTIAL_TTL_MINUTES", 5),
		TokenAlgorithm:      stringVar("WBA_TOKEN_ALGORITHM", session.AlgRS256),
		SubjectTypes:        listVar("WBA_SUBJECT_TYPES", defaultSubjectTypes),
		QueueDir:            stringVar("WBA_QUEUE_DIR", defaultQueueDir),
		ResultDB:            stringVar("WBA_RESULT_DB", defaultResultDB),
		DIDCacheTTL:         minutes("WBA_DID_CACHE_MINUTES", 15),
		PollInterval:        seconds("WBA_POLL_INTERVAL_SECONDS", 30),
		EstimatedProcessing: seconds("WBA_ESTIMATED_PROCESSING_SECONDS", 300),
	}
	var err error
	cfg.Port, err = intVar("WBA_PORT", 0)
	errs = append(errs, err)
	cfg.PollAttempts, err = intVar("WBA_POLL_MAX_ATTEMPTS", 10)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the ranges of every setting.
func (c Config) Validate() error {
	var errs []error
	if c.Domain == "" {
		errs = append(errs, errors.New("config: WBA_DOMAIN must not be empty"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: WBA_PORT %d out of range", c.Port))
	}
	for name, d := range map[string]time.Duration{
		"WBA_NONCE_EXPIRY_MINUTES":   c.NonceWindow,
		"WBA_TOKEN_TTL_MINUTES":      c.TokenTTL,
		"WBA_CREDENTIAL_TTL_MINUTES": c.CredentialTTL,
		"WBA_POLL_INTERVAL_SECONDS":  c.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", name))
		}
	}
	if c.PollAttempts < 1 {
		errs = append(errs, errors.New("config: WBA_POLL_MAX_ATTEMPTS must be at least 1"))
	}
	switch c.TokenAlgorithm {
	case session.AlgRS256, session.AlgES256, session.AlgEdDSA:
	default:
		errs = append(errs, fmt.Errorf("config: unsupported WBA_TOKEN_ALGORITHM %q", c.TokenAlgorithm))
	}
	if len(c.SubjectTypes) == 0 {
		errs = append(errs, errors.New("config: WBA_SUBJECT_TYPES must list at least one type"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Source is the hosting service described by Domain and Port.
func (c Config) Source() hosted.Source {
	return hosted.Source{Host: c.Domain, Port: c.Port}
}

// ResolverOptions returns resolver settings; negative cache TTLs disable caching.
func (c Config) ResolverOptions(local identity.Resolver, logger *slog.Logger) identity.ResolverOptions {
	ttl := c.DIDCacheTTL
	if ttl == 0 {
		ttl = -1
	}
	return identity.ResolverOptions{CacheTTL: ttl, Local: local, Logger: logger}
}

// VerifierOptions returns handshake verifier settings.
func (c Config) VerifierOptions(resolver identity.Resolver, logger *slog.Logger) auth.VerifierOptions {
	return auth.VerifierOptions{Resolver: resolver, Window: c.NonceWindow, Logger: logger}
}

// QueueOptions returns hosted-DID queue settings for this domain.
func (c Config) QueueOptions(logger *slog.Logger) hosted.QueueOptions {
	return hosted.QueueOptions{BaseDir: c.QueueDir, Host: c.Domain, Port: c.Port, Logger: logger}
}

// IssuerOptions returns session token settings for a signing key.
func (c Config) IssuerOptions(logger *slog.Logger) session.IssuerOptions {
	return session.IssuerOptions{Algorithm: c.TokenAlgorithm, TTL: c.TokenTTL, Issuer: c.Source().String(), Logger: logger}
}

func stringVar(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func intVar(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not an integer", key, v)
	}
	return n, nil
}

func listVar(key, def string) []string {
	raw := stringVar(key, def)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
