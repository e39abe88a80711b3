package config

import (
	"github.com/spf13/pflag"

	"github.com/sawpanic/quantfund/internal/leaderboard"
	"github.com/sawpanic/quantfund/internal/log"
)

// BindFlags registers the overridable settings on fs with default values
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Duration("tick-interval", d.Engine.TickInterval, "sampling period")
	fs.Int("workers", d.Engine.Workers, "concurrent per-strategy updates")
	fs.String("leaderboard-mode", string(d.Engine.LeaderboardMode), "leaderboard grouping: participant or strategy")
	fs.Uint64("seed", 0, "seed for confidence and feed walks (0 = random)")
	fs.Bool("feed", d.Feed.Enabled, "sample the synthetic random-walk feed every tick")
	fs.Float64("periods-per-year", d.Metrics.PeriodsPerYear, "Sharpe annualization factor")
	fs.String("http-host", d.HTTP.Host, "HTTP listen host")
	fs.Int("http-port", d.HTTP.Port, "HTTP listen port")
	fs.Bool("redis", d.Redis.Enabled, "mirror snapshots to Redis")
	fs.String("redis-addr", d.Redis.Addr, "Redis address")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", string(d.Log.Format), "log format (auto, console, json)")
}

// ApplyFlags overrides c with every flag the user set explicitly, then
// validates the result
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "tick-interval":
			c.Engine.TickInterval, err = fs.GetDuration(f.Name)
		case "workers":
			c.Engine.Workers, err = fs.GetInt(f.Name)
		case "leaderboard-mode":
			var s string
			if s, err = fs.GetString(f.Name); err == nil {
				c.Engine.LeaderboardMode, err = leaderboard.ParseMode(s)
			}
		case "seed":
			var seed uint64
			if seed, err = fs.GetUint64(f.Name); err == nil {
				c.Seed = seed
				c.Feed.Seed = seed
			}
		case "feed":
			c.Feed.Enabled, err = fs.GetBool(f.Name)
		case "periods-per-year":
			c.Metrics.PeriodsPerYear, err = fs.GetFloat64(f.Name)
		case "http-host":
			c.HTTP.Host, err = fs.GetString(f.Name)
		case "http-port":
			c.HTTP.Port, err = fs.GetInt(f.Name)
		case "redis":
			c.Redis.Enabled, err = fs.GetBool(f.Name)
		case "redis-addr":
			c.Redis.Addr, err = fs.GetString(f.Name)
		case "log-level":
			c.Log.Level, err = fs.GetString(f.Name)
		case "log-format":
			var s string
			if s, err = fs.GetString(f.Name); err == nil {
				c.Log.Format = log.Format(s)
			}
		}
	})
	if err != nil {
		return err
	}
	return c.Validate()
}
