package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/microblog/internal/flagx"
)

// ValuedFlags lists the server flags that take a separate value argument.
var ValuedFlags = []string{"-a", "-d", "-s", "-t", "-r", "-x", "-e", "-b", "-k", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   access token HMAC secret key
//	-t int      access token validity, minutes
//	-r int      remember-me validity, days
//	-x int      password reset expiry, hours
//	-e string   environment (development|test|production)
//	-b string   public base URL
//	-k int      bcrypt hash cost
//
// Duration flags are integers in the unit shown and are converted to
// time.Duration after parsing.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-r", "-x", "-e", "-b", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	rememberValidity := fs.Int("r", int(config.RememberTokenValidityDuration.Hours()/24), "remember-me validity (in days)")
	resetExpiry := fs.Int("x", int(config.PasswordResetExpiry.Hours()), "password reset expiry (in hours)")

	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.BaseURL, "b", config.BaseURL, "public base URL")
	fs.IntVar(&config.HashCost, "k", config.HashCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		return err
	}

	visited := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { visited[f.Name] = true })

	if visited["t"] {
		config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	}
	if visited["r"] {
		config.RememberTokenValidityDuration = time.Duration(*rememberValidity) * 24 * time.Hour
	}
	if visited["x"] {
		config.PasswordResetExpiry = time.Duration(*resetExpiry) * time.Hour
	}
	return nil
}
