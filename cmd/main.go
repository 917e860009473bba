package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/driftwood-social/driftwood/account"
	"github.com/driftwood-social/driftwood/ap"
	"github.com/driftwood-social/driftwood/apclient"
	"github.com/driftwood-social/driftwood/api"
	"github.com/driftwood-social/driftwood/deliver"
	apmiddleware "github.com/driftwood-social/driftwood/middleware"
	"github.com/driftwood-social/driftwood/store"
	"github.com/driftwood-social/driftwood/types"
	"github.com/driftwood-social/driftwood/worker"
)

var (
	version      = "unknown"
	buildMachine = "unknown"
	buildTime    = "unknown"
)

func main() {
	e := echo.New()

	configPaths := []string{}
	configPath := os.Getenv("DRIFTWOOD_CONFIG")
	if configPath != "" {
		configPaths = append(configPaths, configPath)
	}

	additionalConfigs := os.Getenv("DRIFTWOOD_CONFIGS")
	if additionalConfigs != "" {
		for _, v := range strings.Split(additionalConfigs, ":") {
			configPaths = append(configPaths, v)
		}
	}

	if len(configPaths) == 0 {
		configPaths = append(configPaths, "/etc/driftwood/config.yaml")
	}

	config, err := loadConfig(configPaths)
	if err != nil {
		slog.Error("Failed to load config: ", slog.String("error", err.Error()))
		panic(err)
	}

	slog.Info(fmt.Sprintf("Driftwood %s starting...", version))

	config.NodeInfo.Version = "2.0"
	config.NodeInfo.Software.Name = "driftwood"
	config.NodeInfo.Software.Version = version
	config.NodeInfo.Protocols = []string{"activitypub"}

	e.HidePort = true
	e.HideBanner = true

	if config.Server.EnableTrace {
		cleanup, err := setupTraceProvider(config.Server.TraceEndpoint, config.ApConfig.FQDN, version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(
			func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/health"
			},
		)
		e.Use(otelecho.Middleware(config.ApConfig.FQDN, skipper))
	}

	e.Use(echoprometheus.NewMiddleware("driftwood"))
	e.Use(middleware.Recover())

	e.Binder = &apmiddleware.Binder{}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(config.Server.Dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB() // for pinging
	if err != nil {
		panic("failed to connect database")
	}
	defer sqlDB.Close()

	err = db.Use(tracing.NewPlugin(
		tracing.WithDBName("postgres"),
	))
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	mc := memcache.New(config.Server.MemcachedAddr)
	defer mc.Close()

	// Migrate the schema
	log.Println("start migrate")
	db.AutoMigrate(
		&types.Account{},
		&types.Status{},
		&types.Report{},
		&types.Quote{},
		&types.Follow{},
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Server.RedisAddr,
		Password: "", // no password set
		DB:       config.Server.RedisDB,
	})
	err = redisotel.InstrumentTracing(
		rdb,
		redisotel.WithAttributes(
			attribute.KeyValue{
				Key:   "db.name",
				Value: attribute.StringValue("redis"),
			},
		),
	)
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	storeService := store.NewStore(db)
	queue := deliver.NewQueue(rdb)
	apClient := apclient.NewApClient(mc, storeService, config.ApConfig)
	accountService := account.NewService(storeService, queue, config.ApConfig)

	apService := ap.NewService(
		storeService,
		queue,
		accountService,
		config.NodeInfo,
		config.ApConfig,
	)

	apiService := api.NewService(storeService, apClient, queue, config.ApConfig)
	apiHandler := api.NewHandler(apiService)

	apHandler := ap.NewHandler(apService)

	deliveryWorker := worker.NewWorker(queue, storeService, apClient, config.ApConfig)
	go deliveryWorker.Run()

	e.GET("/.well-known/webfinger", apHandler.WebFinger)
	e.GET("/.well-known/nodeinfo", apHandler.NodeInfoWellKnown)

	apGroup := e.Group("/ap")
	apGroup.GET("/nodeinfo/2.0", apHandler.NodeInfo)
	apGroup.GET("/acct/:id", apHandler.User)
	apGroup.POST("/acct/:id/inbox", apHandler.Inbox)
	apGroup.GET("/note/:id", apHandler.Note)

	apGroup.POST("/inbox", apHandler.Inbox)

	apGroup.GET("/api/stats", apiHandler.GetStats)
	apGroup.GET("/api/resolve/:id", apiHandler.ResolvePerson)
	apGroup.GET("/api/statuses", apiHandler.LookupStatus)
	apGroup.GET("/api/statuses/:id", apiHandler.GetStatus)

	e.GET("/health", func(c echo.Context) (err error) {
		ctx := c.Request().Context()

		err = sqlDB.Ping()
		if err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}

		err = rdb.Ping(ctx).Err()
		if err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}

		return c.String(http.StatusOK, "ok")
	})

	e.GET("/metrics", echoprometheus.NewHandler())

	port := ":8000"
	envport := os.Getenv("DRIFTWOOD_PORT")
	if envport != "" {
		port = ":" + envport
	}

	e.Logger.Fatal(e.Start(port))
}
