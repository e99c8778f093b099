package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/waitlist-engine/internal/api"
	"github.com/ignite/waitlist-engine/internal/auth"
	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/metrics"
	"github.com/ignite/waitlist-engine/internal/notify"
	"github.com/ignite/waitlist-engine/internal/pkg/distlock"
	"github.com/ignite/waitlist-engine/internal/pkg/httpretry"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
	"github.com/ignite/waitlist-engine/internal/ratelimit"
	"github.com/ignite/waitlist-engine/internal/service/waitlist"
	"github.com/ignite/waitlist-engine/internal/token"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// connectRedis returns nil when url is empty or the server does not answer.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Println("[Server] Redis not configured (REDIS_URL not set)")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[Server] Warning: Redis connection failed (%s): %v", opts.Addr, err)
		client.Close()
		return nil
	}
	log.Printf("[Server] Redis connected: %s", opts.Addr)
	return client
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("[Server] Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := connectRedis(ctx, cfg.Redis.URL)

	store, err := kv.Open(ctx, cfg.Store, redisClient)
	if err != nil {
		log.Fatalf("[Server] Failed to initialize %s store: %v", cfg.Store.Type, err)
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		log.Printf("[Server] Warning: %s store ping failed: %v", cfg.Store.Type, err)
	}
	pingCancel()
	kvClient := kv.NewClient(store)
	log.Printf("[Server] Store initialized: %s", cfg.Store.Type)

	lockOpts := distlock.Options{TTL: cfg.Waitlist.LockTTL()}
	var locker distlock.Locker
	if pg, ok := store.(*kv.PostgresStore); ok {
		locker = distlock.NewLocker(redisClient, pg.DB(), lockOpts)
	} else {
		locker = distlock.NewLocker(redisClient, nil, lockOpts)
	}

	limitCfg := ratelimit.Config{Limit: cfg.Waitlist.SignupsPerWindow, Window: cfg.Waitlist.Window()}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, limitCfg)
		log.Printf("[Server] Rate limiting via Redis: %d signups per %s", limitCfg.Limit, limitCfg.Window)
	} else {
		limiter = ratelimit.NewKVLimiter(kvClient, locker, limitCfg)
		log.Printf("[Server] Rate limiting via %s store: %d signups per %s", cfg.Store.Type, limitCfg.Limit, limitCfg.Window)
	}

	var tokens *token.Service
	if cfg.Token.Secret != "" {
		tokens, err = token.New(cfg.Token.Secret, cfg.Token.TTL())
		if err != nil {
			log.Fatalf("[Server] Failed to initialize tokens: %v", err)
		}
	} else {
		log.Println("[Server] WARNING: TOKEN_SECRET not set, email confirmation is disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var mailer notify.Mailer
	if cfg.SES.Enabled {
		sesClient, err := notify.NewSESClient(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("[Server] Failed to initialize SES client: %v", err)
		}
		sesMailer, err := notify.NewSESMailer(sesClient, cfg.SES, notify.Templates{})
		if err != nil {
			log.Fatalf("[Server] Failed to initialize SES mailer: %v", err)
		}
		mailer = sesMailer
		log.Printf("[Server] SES mailer enabled (region: %s, from: %s)", cfg.SES.Region, cfg.SES.FromEmail)
	} else {
		log.Println("[Server] SES disabled, confirmation emails will not be sent")
	}

	var sinks []notify.EventSink
	if len(cfg.Webhooks.URLs) > 0 {
		hc := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Webhooks.Timeout()}, cfg.Webhooks.MaxRetries)
		for _, u := range cfg.Webhooks.URLs {
			sinks = append(sinks, notify.NewWebhookSink(u, cfg.Webhooks.SigningSecret, hc))
		}
		log.Printf("[Server] Webhooks enabled: %d target(s)", len(cfg.Webhooks.URLs))
	}
	if cfg.SQS.Enabled && cfg.SQS.QueueURL != "" {
		sqsClient, err := notify.NewSQSClient(ctx, cfg.SQS.Region)
		if err != nil {
			log.Printf("[Server] Warning: SQS client init failed, events will not be queued: %v", err)
		} else {
			sinks = append(sinks, notify.NewSQSSink(sqsClient, cfg.SQS.QueueURL))
			log.Printf("[Server] SQS event sink enabled (queue=%s)", cfg.SQS.QueueURL)
		}
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Workers:      cfg.Waitlist.NotifyWorkers,
		QueueSize:    cfg.Waitlist.NotifyQueueSize,
		EmailTimeout: cfg.SES.Timeout(),
	}, mailer, sinks, m)

	svc := waitlist.NewService(waitlist.Deps{
		Store:    kvClient,
		Locker:   locker,
		Limiter:  limiter,
		Tokens:   tokens,
		Notifier: dispatcher,
		Metrics:  m,
	}, waitlist.Config{
		BoostMin:       cfg.Waitlist.ReferralBoostMin,
		BoostMax:       cfg.Waitlist.ReferralBoostMax,
		RecentWindow:   cfg.Waitlist.RecentWindow(),
		ConfirmBaseURL: strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/confirm-email",
	})
	dispatcher.OnEmailDelivered(svc.RecordEmailSent)
	dispatcher.Start()

	var authManager *auth.AuthManager
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		authManager, err = auth.NewAuthManager(cfg.Auth, cfg.Server.PublicBaseURL, kvClient)
		if err != nil {
			log.Fatalf("[Server] Failed to initialize auth: %v", err)
		}
		log.Printf("[Server] Google OAuth enabled for domain: %s (callback: %s/auth/callback)", cfg.Auth.AllowedDomain, cfg.Server.PublicBaseURL)
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Waitlist: svc,
		Auth:     authManager,
		Health:   api.NewHealthChecker(store, cfg.Store.Type, redisClient, dispatcher),
		Metrics:  m,
	}, cfg.Auth.DevMode)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("[Server] Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Server error: %v", err)
		}
	}()

	<-done
	log.Println("[Server] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Server shutdown error: %v", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Printf("[Server] Notifier drain incomplete: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("[Server] Store close error: %v", err)
	}
	// The redis store owns the client and closed it above.
	if redisClient != nil && cfg.Store.Type != "redis" {
		redisClient.Close()
	}

	log.Println("[Server] Server stopped")
}
