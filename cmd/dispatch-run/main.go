// README: One-shot dispatch pass for cron or manual runs; prints a per-tenant summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxidispatch/internal/config"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/logging"
	"taxidispatch/internal/maps"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

func main() {
	var (
		tenantID string
		timeout  time.Duration
	)
	flag.StringVar(&tenantID, "tenant", "", "Run only this tenant (default: every auto-dispatch tenant)")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Total timeout")
	flag.Parse()

	cfg, err := config.Load()
	log := logging.New(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}

	var (
		geocoder location.Geocoder
		cache    location.GeocodeCache
		locker   dispatch.Locker = dispatch.NewLocalLocker()
	)
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.WithError(err).Fatal("maps geocoder")
		}
		geocoder = g
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = location.NewRedisGeocodeCache(redisClient, cfg.Maps.GeocodeCacheTTL)
		locker = dispatch.NewRedisLocker(redisClient)
	}
	// Road distance is not needed to rank drivers.
	locationSvc := location.NewService(geocoder, nil, cache, cfg.Maps.Timeout, log.WithField("component", "location"))

	svc := dispatch.NewService(
		dispatch.NewStore(dbPool),
		tenant.NewService(tenant.NewStore(dbPool)),
		locationSvc,
		locker,
		cfg.Dispatch,
		log.WithField("component", "dispatch"),
	)

	var (
		sum    dispatch.Summary
		runErr error
	)
	if tenantID != "" {
		var rep dispatch.Report
		rep, runErr = svc.RunTenant(ctx, types.ID(tenantID))
		sum = dispatch.Summary{Assigned: rep.Assigned, Failed: rep.Failed, Tenants: []dispatch.Report{rep}}
	} else {
		sum, runErr = svc.RunAll(ctx)
	}

	fmt.Println("== Dispatch ==")
	for _, rep := range sum.Tenants {
		state := ""
		if rep.Skipped {
			state = " (skipped: pass in progress elsewhere)"
		}
		fmt.Printf("%-24s assigned=%d failed=%d%s\n", rep.TenantID, rep.Assigned, rep.Failed, state)
		for _, a := range rep.Assignments {
			fmt.Printf("  job %s -> driver %s (%.2f mi)\n", a.JobID, a.DriverID, a.Miles)
		}
		for _, f := range rep.Failures {
			fmt.Printf("  job %s unassigned: %s\n", f.JobID, f.Reason)
		}
	}
	fmt.Printf("ASSIGNED=%d FAILED=%d\n", sum.Assigned, sum.Failed)

	if runErr != nil {
		log.WithError(runErr).Error("dispatch pass had errors")
		os.Exit(1)
	}
}
