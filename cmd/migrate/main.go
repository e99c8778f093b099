package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/distlock"
	"github.com/ignite/waitlist-engine/internal/service/waitlist"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file")
	dir := flag.String("dir", "migrations", "directory of .sql files")
	listOnly := flag.Bool("list", false, "list the kv table and record counts, then exit")
	reindex := flag.Bool("reindex", false, "heal non-canonical keys and rebuild the referral index")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *reindex {
		runReindex(cfg)
		return
	}

	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if *listOnly {
		listRecords(db, cfg.Store.Table)
		return
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", *dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(*dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}

func listRecords(db *sql.DB, table string) {
	prefixes := []string{
		domain.PrefixUser,
		domain.PrefixConfirmation,
		domain.PrefixReferralIndex,
		domain.PrefixRateLimit,
		domain.PrefixAdminSession,
	}
	store := kv.NewPostgresStore(db, table)
	ctx := context.Background()
	for _, p := range prefixes {
		n, err := store.CountByPrefix(ctx, p)
		if err != nil {
			log.Fatalf("count %s: %v", p, err)
		}
		fmt.Printf("  %-22s %d\n", p+"*", n)
	}
}

// runReindex works against any store backend, not only postgres.
func runReindex(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("parse REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
	}

	store, err := kv.Open(ctx, cfg.Store, redisClient)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var db *sql.DB
	if pg, ok := store.(*kv.PostgresStore); ok {
		db = pg.DB()
	}
	locker := distlock.NewLocker(redisClient, db, distlock.Options{})

	svc := waitlist.NewService(waitlist.Deps{Store: kv.NewClient(store), Locker: locker}, waitlist.Config{})
	report, err := svc.Reindex(ctx)
	if err != nil {
		log.Fatalf("reindex: %v", err)
	}
	log.Printf("Reindex complete: scanned=%d healed=%d removed=%d indexed=%d repaired=%d counter=%d",
		report.Scanned, report.HealedKeys, report.RemovedKeys, report.IndexedCodes, report.RepairedCodes, report.Counter)
}
