package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-claim/pkg/device"
	deviceapi "github.com/tendant/simple-claim/pkg/device/api"
	"github.com/tendant/simple-claim/pkg/identity"
	identityapi "github.com/tendant/simple-claim/pkg/identity/api"
	"github.com/tendant/simple-claim/pkg/store"
)

type ServerConfig struct {
	Host string `env:"CLAIM_HOST" env-default:"localhost"`
	Port uint16 `env:"CLAIM_PORT" env-default:"4000"`
}

type StoreConfig struct {
	Backend string `env:"CLAIM_STORE_BACKEND" env-default:"memory"`
	DataDir string `env:"CLAIM_DATA_DIR" env-default:"./data"`
}

type PgConfig struct {
	Host     string `env:"CLAIM_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"CLAIM_PG_PORT" env-default:"5432"`
	Database string `env:"CLAIM_PG_DATABASE" env-default:"claim_db"`
	User     string `env:"CLAIM_PG_USER" env-default:"claim"`
	Password string `env:"CLAIM_PG_PASSWORD" env-default:"pwd"`
}

type RedisConfig struct {
	Addr     string `env:"CLAIM_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"CLAIM_REDIS_PASSWORD" env-default:""`
	DB       int    `env:"CLAIM_REDIS_DB" env-default:"0"`
}

type JwtConfig struct {
	JwtSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

type Config struct {
	ServerConfig ServerConfig
	StoreConfig  StoreConfig
	PgConfig     PgConfig
	RedisConfig  RedisConfig
	JwtConfig    JwtConfig
}

func (c PgConfig) toURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	config := Config{}
	cleanenv.ReadEnv(&config)

	ctx := context.Background()

	storeConfig := store.Config{DataDir: config.StoreConfig.DataDir}
	switch config.StoreConfig.Backend {
	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, config.PgConfig.toURL())
		if err != nil {
			slog.Error("Failed creating dbpool", "db", config.PgConfig.Database, "host", config.PgConfig.Host, "port", config.PgConfig.Port, "user", config.PgConfig.User)
			os.Exit(-1)
		}
		storeConfig.Pool = pool
	case "redis":
		storeConfig.RedisClient = redis.NewClient(&redis.Options{
			Addr:     config.RedisConfig.Addr,
			Password: config.RedisConfig.Password,
			DB:       config.RedisConfig.DB,
		})
	}

	st, err := store.NewStore(ctx, config.StoreConfig.Backend, storeConfig)
	if err != nil {
		slog.Error("Failed creating store", "backend", config.StoreConfig.Backend, "err", err)
		os.Exit(-1)
	}
	defer st.Close()

	deviceService := device.NewService(st)
	provider := identity.NewLocalProvider(config.JwtConfig.JwtSecret)
	session := identity.NewSession(provider, identity.WithDeviceReleaser(deviceService))

	tokenAuth := jwtauth.New("HS256", []byte(config.JwtConfig.JwtSecret), nil)

	identityHandle := identityapi.NewHandler(session, tokenAuth)
	deviceHandle := deviceapi.NewHandler(deviceService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})

	r.Mount("/auth", identityHandle.Routes())

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Mount("/auth/account", identityHandle.ProtectedRoutes())
		r.Mount("/", deviceHandle.Routes())
	})

	addr := fmt.Sprintf("%s:%d", config.ServerConfig.Host, config.ServerConfig.Port)
	slog.Info("Starting server", "addr", addr, "store", config.StoreConfig.Backend)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}
