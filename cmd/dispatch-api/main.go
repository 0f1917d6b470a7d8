// README: Entry point; loads config, wires services, starts the HTTP server and the dispatch scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/config"
	httptransport "taxidispatch/internal/http"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/logging"
	"taxidispatch/internal/maps"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/job"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	locationSvc := newLocationService(cfg, redisClient, log)

	tenantSvc := tenant.NewService(tenant.NewStore(dbPool))
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), tenantSvc, locationSvc, cfg.Pricing, log.WithField("component", "pricing"))
	jobSvc := job.NewService(job.NewStore(dbPool), pricingSvc, tenantSvc, log.WithField("component", "job"))
	driverSvc := driver.NewService(driver.NewStore(dbPool), log.WithField("component", "driver"))

	var locker dispatch.Locker = dispatch.NewLocalLocker()
	if redisClient != nil {
		locker = dispatch.NewRedisLocker(redisClient)
	}
	dispatchSvc := dispatch.NewService(dispatch.NewStore(dbPool), tenantSvc, locationSvc, locker, cfg.Dispatch, log.WithField("component", "dispatch"))
	jobSvc.SetTrigger(dispatchSvc)

	if writer := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic); writer != nil {
		defer writer.Close()
		go dispatch.NewPublisher(writer, log.WithField("component", "publisher")).Run(ctx, dispatchSvc.Events())
	} else {
		go drain(ctx, dispatchSvc.Events())
	}

	deps := httptransport.RouterDeps{
		Pricing:  pricingSvc,
		Jobs:     jobSvc,
		Drivers:  driverSvc,
		Dispatch: dispatchSvc,
		Tenants:  tenantSvc,
		Log:      log,
	}
	if cfg.Firebase.AuthDisabled {
		log.Warn("auth disabled; every request is served as admin")
	} else {
		if cfg.Firebase.ProjectID == "" {
			log.Fatal("TD_FIREBASE_PROJECT_ID is required unless TD_AUTH_DISABLED is set")
		}
		verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
		deps.Verifier = verifier
	}

	go dispatchSvc.RunScheduler(ctx)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(deps), log)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
}

// newLocationService wires the maps providers when an API key is configured. Absent
// providers stay nil interfaces so the service falls back to great-circle distance.
func newLocationService(cfg config.Config, redisClient *redis.Client, log *logrus.Logger) *location.Service {
	var (
		geocoder location.Geocoder
		router   location.Router
		cache    location.GeocodeCache
	)
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.WithError(err).Fatal("maps geocoder")
		}
		r, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps router")
		}
		geocoder, router = g, r
	} else {
		log.Warn("TD_MAPS_API_KEY not set; distances are great-circle and addresses without coordinates cannot be priced")
	}
	if redisClient != nil {
		cache = location.NewRedisGeocodeCache(redisClient, cfg.Maps.GeocodeCacheTTL)
	}
	return location.NewService(geocoder, router, cache, cfg.Maps.Timeout, log.WithField("component", "location"))
}

// drain keeps the event buffer moving when no broker is configured.
func drain(ctx context.Context, events <-chan dispatch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		}
	}
}
