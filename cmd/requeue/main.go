package main

import (
	"context"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/moodsense/moody/internal/pkg/postgres"
	"github.com/pkg/errors"
)

// requeue returns failed jobs back to the queue for another processing attempt.
// Job IDs are passed as a comma separated list in the 'jobs' config key,
// e.g. requeue --jobs=id1,id2
func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	printBanner()

	ids := strings.Split(cfg.GetString("jobs"), ",")
	var jobIDs []string
	for _, id := range ids {
		if s := strings.TrimSpace(id); s != "" {
			jobIDs = append(jobIDs, s)
		}
	}
	if len(jobIDs) == 0 {
		goapp.Log.Fatal().Err(errors.New("no job IDs, pass --jobs=id1,id2")).Msg("can't start")
	}

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	failed := 0
	for _, id := range jobIDs {
		if err := db.Requeue(ctx, id); err != nil {
			goapp.Log.Error().Err(errors.Wrapf(err, "can't requeue %s", id)).Send()
			failed++
			continue
		}
		goapp.Log.Info().Str("ID", id).Msg("requeued")
	}
	if failed > 0 {
		goapp.Log.Fatal().Msgf("failed to requeue %d of %d jobs", failed, len(jobIDs))
	}
	goapp.Log.Info().Msg("Done. Bye")
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
/_/  /_/\____/\____/_____/\__, /
                         /____/

   ________  ____ ___  _____  __  _____
  / ___/ _ \/ __ ` + "`" + `/ / / / _ \/ / / / _ \
 / /  /  __/ /_/ / /_/ /  __/ /_/ /  __/
/_/   \___/\__, /\__,_/\___/\__,_/\___/   v: %s
             /_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/moodsense/moody"))
}
