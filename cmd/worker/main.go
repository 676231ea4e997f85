package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/labstack/gommon/color"
	"github.com/moodsense/moody/internal/pkg/audio"
	"github.com/moodsense/moody/internal/pkg/classifier"
	"github.com/moodsense/moody/internal/pkg/consul"
	"github.com/moodsense/moody/internal/pkg/filer"
	"github.com/moodsense/moody/internal/pkg/postgres"
	"github.com/moodsense/moody/internal/pkg/utils"
	"github.com/moodsense/moody/internal/pkg/worker"
	"github.com/spf13/viper"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	dbConfig.ConnConfig.Tracer = &tracelog.TraceLog{Logger: utils.NewPgxLogAdapter(),
		LogLevel: tracelog.LogLevelWarn}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	fl, err := filer.NewFiler(ctx, filer.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"),
		Key: cfg.GetString("filer.key"), Secure: cfg.GetBool("filer.ssl")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	data.Acquirer, err = audio.NewAcquirer(fl, fl, cfg.GetString("filer.bucket"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init audio acquirer")
	}

	soundURLs, err := newURLProvider(cfg, "classifier.soundUrl", "consul.soundService")
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init sound classifier URLs")
	}
	data.Sound, err = classifier.NewClient(soundURLs, "yamnet")
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init sound classifier")
	}
	emotionURLs, err := newURLProvider(cfg, "classifier.emotionUrl", "consul.emotionService")
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init emotion classifier URLs")
	}
	data.Emotion, err = classifier.NewClient(emotionURLs, "wav2vec2-emotion")
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init emotion classifier")
	}

	data.PollInterval = defaultV(cfg.GetDuration("worker.pollInterval"), time.Second*5)
	data.StaleCheckInterval = defaultV(cfg.GetDuration("worker.staleCheckInterval"), time.Minute)
	data.MaxProcessing = defaultV(cfg.GetDuration("worker.maxProcessing"), time.Minute*30)
	data.ModelName = defaultV(cfg.GetString("worker.modelName"), "yamnet-wav2vec2-emotion")
	data.ModelVersion = defaultV(cfg.GetString("worker.modelVersion"), "1.0.0")

	go utils.RunPerfEndpoint()

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

// newURLProvider prefers consul discovery, falls back to a fixed URL
func newURLProvider(cfg *viper.Viper, urlKey, srvKey string) (classifier.URLProvider, error) {
	if consulURL := cfg.GetString("consul.url"); consulURL != "" {
		apiCfg := api.DefaultConfig()
		apiCfg.Address = consulURL
		return consul.NewProvider(apiCfg, cfg.GetString(srvKey))
	}
	return classifier.StaticURL(cfg.GetString(urlKey))
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    __  ___________  ____  __  __
   /  |/  / __ \ __ \/ __ \/ / / /
  / /|_/ / / / / / / / / / Y / /
 / /  / / /_/ / /_/ / /_/ / /_/ /
/_/  /_/\____/\____/_____/\__, /  v: %s
                         /____/
                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/moodsense/moody"))
}
