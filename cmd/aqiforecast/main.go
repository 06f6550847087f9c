package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/aqiforecast/internal/api"
	"github.com/lox/aqiforecast/internal/cache"
	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
	"github.com/lox/aqiforecast/internal/narrative"
	"github.com/lox/aqiforecast/internal/pipeline"
	"github.com/lox/aqiforecast/internal/store"
)

type Globals struct {
	EnvFile    kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Load environment variables from this file.'"`
	Data       string                   `help:"Path to the historical daily AQI CSV." default:"city_day.csv" env:"AQI_DATA"`
	DB         string                   `help:"SQLite database for the record table." default:":memory:" env:"AQI_DB"`
	MinRecords int                      `help:"Valid records a city needs before it can be forecast." default:"365" env:"AQI_MIN_RECORDS"`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the forecast dashboard and JSON API."`
	Forecast ForecastCmd `cmd:"" help:"Print a forecast for one city."`
	Cities   CitiesCmd   `cmd:"" help:"List cities with enough data to forecast."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aqiforecast"),
		kong.Description("Daily air quality forecasts for Indian cities from historical AQI data."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// open builds the store and loads the dataset. A failed load is fatal.
func (g *Globals) open() (*store.Store, *pipeline.Service) {
	st, err := store.Open(g.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	svc := pipeline.NewService(st, forecast.NewAdditiveTrainer(), pipeline.Config{
		DataPath:   g.Data,
		MinRecords: g.MinRecords,
	})
	if err := svc.Reload(); err != nil {
		resumed, rerr := svc.Resume()
		if rerr != nil || !resumed {
			st.Close()
			log.Fatalf("%v\nensure city_day.csv is present (set --data or AQI_DATA to its path)", err)
		}
		log.Printf("warning: %v; serving the last successful load from %s", err, g.DB)
	}
	return st, svc
}

type ServeCmd struct {
	Addr      string        `help:"HTTP listen address." default:":8080" env:"AQI_ADDR"`
	Warm      []string      `help:"Cities to train at startup." default:"Delhi" env:"AQI_WARM"`
	RedisURL  string        `help:"Redis URL for the forecast result cache (disabled when empty)." env:"REDIS_URL"`
	CacheTTL  time.Duration `help:"Lifetime of cached forecast results." default:"24h" env:"AQI_CACHE_TTL"`
	RedisWait time.Duration `help:"How long to retry the Redis connection at startup." default:"30s" env:"AQI_REDIS_WAIT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, svc := g.open()
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.RedisURL != "" {
		rc, err := cache.Connect(ctx, c.RedisURL, c.CacheTTL, c.RedisWait)
		if err != nil {
			log.Printf("redis unavailable, running without result cache: %v", err)
		} else {
			defer rc.Close()
			svc.SetResultCache(rc)
		}
	}

	var rw narrative.Rewriter
	if w, err := narrative.NewWriter(); err != nil {
		log.Printf("outlook rewriting disabled: %v", err)
	} else {
		rw = w
	}

	server := api.NewServer(svc, narrative.New(rw), c.Addr)

	if len(c.Warm) > 0 {
		log.Printf("warming models for %v", c.Warm)
		svc.Warm(c.Warm)
	}

	go reloadOnHangup(ctx, svc, server)

	log.Printf("starting server on %s", c.Addr)
	return server.Run(ctx)
}

// reloadOnHangup reloads the dataset on SIGHUP. A failed reload keeps the
// previous table and models.
func reloadOnHangup(ctx context.Context, svc *pipeline.Service, server *api.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Println("SIGHUP received, reloading dataset")
			if err := svc.Reload(); err != nil {
				log.Printf("reload: %v", err)
				continue
			}
			server.Reset()
		}
	}
}

type ForecastCmd struct {
	City    string `help:"City to forecast." default:"Delhi"`
	Horizon int    `help:"Days to forecast (7-90)." default:"7"`
}

func (c *ForecastCmd) Run(g *Globals) error {
	st, svc := g.open()
	defer st.Close()

	res, err := svc.Forecast(context.Background(), c.City, c.Horizon)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tPredicted\tLower\tUpper\tCategory\t")
	for _, p := range res.Points {
		fmt.Fprintf(tw, "%s\t%.0f\t%.1f\t%.1f\t%s\t\n",
			p.Date.Format(models.DateLayout), p.Predicted, p.Lower, p.Upper, forecast.CategoryFor(p.Predicted).Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(narrative.Summarize(res))
	return nil
}

type CitiesCmd struct{}

func (c *CitiesCmd) Run(g *Globals) error {
	st, svc := g.open()
	defer st.Close()

	cities, err := svc.ValidCities()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "City\tRecords\tFrom\tTo\tLatest AQI")
	for _, c := range cities {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.0f\n", c.City, c.ValidRecords,
			c.FirstDate.Format(models.DateLayout), c.LastDate.Format(models.DateLayout), c.LatestAQI)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	log.Printf("%d cities with at least %d valid records", len(cities), svc.MinRecords())
	return nil
}
