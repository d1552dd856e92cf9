package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/microblog/internal/flagx"
	"github.com/dmitrijs2005/microblog/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Durations use
// timex.Duration so both "2h" and integer nanoseconds are accepted. Pointer
// fields distinguish "absent" from zero, so a partial file only overrides
// what it names.
type JsonConfig struct {
	Environment                   *string         `json:"environment"`
	EndpointAddrHTTP              *string         `json:"endpoint_addr_http"`
	DatabaseDSN                   *string         `json:"database_dsn"`
	SecretKey                     *string         `json:"secret_key"`
	AccessTokenValidityDuration   *timex.Duration `json:"access_token_validity_duration"`
	RememberTokenValidityDuration *timex.Duration `json:"remember_token_validity_duration"`
	PasswordResetExpiry           *timex.Duration `json:"password_reset_expiry"`
	NameMaxLength                 *int            `json:"name_max_length"`
	EmailMaxLength                *int            `json:"email_max_length"`
	PasswordMaxLength             *int            `json:"password_max_length"`
	MicropostMaxLength            *int            `json:"micropost_max_length"`
	HashCost                      *int            `json:"hash_cost"`
	BaseURL                       *string         `json:"base_url"`
	CORSOrigins                   []string        `json:"cors_origins"`
	AuthRateLimit                 *float64        `json:"auth_rate_limit"`
	AuthRateBurst                 *int            `json:"auth_rate_burst"`
	SMTPAddr                      *string         `json:"smtp_addr"`
	SMTPUser                      *string         `json:"smtp_user"`
	SMTPPassword                  *string         `json:"smtp_password"`
	MailFrom                      *string         `json:"mail_from"`
	S3RootUser                    *string         `json:"s3_root_user"`
	S3RootPassword                *string         `json:"s3_root_password"`
	S3Bucket                      *string         `json:"s3_bucket"`
	S3Region                      *string         `json:"s3_region"`
	S3BaseEndpoint                *string         `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config (if any) into config.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	set(&config.Environment, c.Environment)
	set(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RememberTokenValidityDuration != nil {
		config.RememberTokenValidityDuration = c.RememberTokenValidityDuration.Duration
	}
	if c.PasswordResetExpiry != nil {
		config.PasswordResetExpiry = c.PasswordResetExpiry.Duration
	}
	set(&config.NameMaxLength, c.NameMaxLength)
	set(&config.EmailMaxLength, c.EmailMaxLength)
	set(&config.PasswordMaxLength, c.PasswordMaxLength)
	set(&config.MicropostMaxLength, c.MicropostMaxLength)
	set(&config.HashCost, c.HashCost)
	set(&config.BaseURL, c.BaseURL)
	if c.CORSOrigins != nil {
		config.CORSOrigins = c.CORSOrigins
	}
	set(&config.AuthRateLimit, c.AuthRateLimit)
	set(&config.AuthRateBurst, c.AuthRateBurst)
	set(&config.SMTPAddr, c.SMTPAddr)
	set(&config.SMTPUser, c.SMTPUser)
	set(&config.SMTPPassword, c.SMTPPassword)
	set(&config.MailFrom, c.MailFrom)
	set(&config.S3RootUser, c.S3RootUser)
	set(&config.S3RootPassword, c.S3RootPassword)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
