package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/email/mailgun"
	"github.com/willemschots/accounts/internal/email/postmark"
	"github.com/willemschots/accounts/internal/email/sendgrid"
	"github.com/willemschots/accounts/internal/krypto"
	"github.com/willemschots/accounts/internal/web"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	// viewDir is empty when the embedded templates are used.
	viewDir    string
	cookieKeys []krypto.Key
	server     web.ServerConfig
}

type dbConfig struct {
	driver  db.Driver
	dsn     string
	migrate bool
}

type emailConfig struct {
	driver string
	// templateDir is empty when the embedded templates are used.
	templateDir string
	service     email.ServiceConfig
	postmark    postmark.Settings
	mailgun     mailgun.Settings
	sendgrid    sendgrid.Settings
}

// oauthConfig contains the client credentials of the external providers.
// A provider is only enabled when its client ID is set.
type oauthConfig struct {
	githubClientID     string
	githubClientSecret krypto.Secret
	googleClientID     string
	googleClientSecret krypto.Secret
}

type logConfig struct {
	level slog.Level
	// file is empty when logs are only written to the output of run.
	file      string
	maxSizeMB int
}

// config is the configuration for the server command.
type config struct {
	http  httpConfig
	db    dbConfig
	auth  auth.ServiceConfig
	email emailConfig
	oauth oauthConfig
	log   logConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 10,
			server: web.ServerConfig{
				SecureCookie: true,
			},
		},
		db: dbConfig{
			driver:  db.DriverSQLite3,
			dsn:     "accounts.db",
			migrate: true,
		},
		auth: auth.ServiceConfig{
			WorkerTimeout: time.Second * 10,
			TokenExpiry:   time.Hour * 24,
		},
		email: emailConfig{
			driver: "log",
			service: email.ServiceConfig{
				BaseURL: mustURL("http://localhost:8888"),
			},
			postmark: postmark.Settings{
				APIURL:        mustURL(postmark.DefaultAPIURL),
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				BaseURL: mustURL(mailgun.DefaultBaseURL),
			},
			sendgrid: sendgrid.Settings{
				BaseURL: mustURL(sendgrid.DefaultBaseURL),
			},
		},
		log: logConfig{
			level:     slog.LevelInfo,
			maxSizeMB: 100,
		},
	}
}

// requiredKeys need to be present in the environment.
var requiredKeys = []string{
	"HTTP_COOKIE_KEYS",
	"HTTP_CSRF_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_VIEW_DIR": func(v string, c *config) error {
		c.http.viewDir = v
		return nil
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}

		// Keys are used in pairs of authentication and encryption keys.
		if len(keys)%2 != 0 {
			return fmt.Errorf("expected an even number of keys, got %d", len(keys))
		}

		c.http.cookieKeys = keys
		return nil
	},
	"HTTP_CSRF_KEY": func(v string, c *config) error {
		return confKey(v, &c.http.server.CSRFKey)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.email.service.BaseURL)
	},
	"DB_DRIVER": func(v string, c *config) error {
		d, err := db.ParseDriver(v)
		if err != nil {
			return err
		}

		c.db.driver = d
		return nil
	},
	"DB_DSN": func(v string, c *config) error {
		return confNonEmpty(v, &c.db.dsn)
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"AUTH_WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.WorkerTimeout, 0, math.MaxInt64)
	},
	"AUTH_TOKEN_EXPIRY": func(v string, c *config) error {
		return confDuration(v, &c.auth.TokenExpiry, 0, math.MaxInt64)
	},
	"AUTH_LEGACY_CONFIRMATION": func(v string, c *config) error {
		return confBool(v, &c.auth.LegacyConfirmation)
	},
	"EMAIL_TEMPLATE_DIR": func(v string, c *config) error {
		c.email.templateDir = v
		return nil
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		switch v {
		case "log", "postmark", "mailgun", "sendgrid":
			c.email.driver = v
			return nil
		default:
			return fmt.Errorf("unknown email driver %q", v)
		}
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}

		c.email.service.From = addr
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_API_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		return confNonEmpty(v, &c.email.postmark.MessageStream)
	},
	"MAILGUN_BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.email.mailgun.BaseURL)
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		return confNonEmpty(v, &c.email.mailgun.Domain)
	},
	"MAILGUN_API_KEY": func(v string, c *config) error {
		c.email.mailgun.APIKey = krypto.NewSecret(v)
		return nil
	},
	"SENDGRID_BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.email.sendgrid.BaseURL)
	},
	"SENDGRID_API_KEY": func(v string, c *config) error {
		c.email.sendgrid.APIKey = krypto.NewSecret(v)
		return nil
	},
	"OAUTH_GITHUB_CLIENT_ID": func(v string, c *config) error {
		c.oauth.githubClientID = v
		return nil
	},
	"OAUTH_GITHUB_CLIENT_SECRET": func(v string, c *config) error {
		c.oauth.githubClientSecret = krypto.NewSecret(v)
		return nil
	},
	"OAUTH_GOOGLE_CLIENT_ID": func(v string, c *config) error {
		c.oauth.googleClientID = v
		return nil
	},
	"OAUTH_GOOGLE_CLIENT_SECRET": func(v string, c *config) error {
		c.oauth.googleClientSecret = krypto.NewSecret(v)
		return nil
	},
	"LOG_LEVEL": func(v string, c *config) error {
		return c.log.level.UnmarshalText([]byte(v))
	},
	"LOG_FILE": func(v string, c *config) error {
		c.log.file = v
		return nil
	},
	"LOG_FILE_MAX_SIZE_MB": func(v string, c *config) error {
		size, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		if size < 1 {
			return fmt.Errorf("size %d should be at least 1", size)
		}

		c.log.maxSizeMB = size
		return nil
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// When ENV_FILE is set the variables in that file are loaded first, variables
// that are already set take precedence.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	if file, ok := os.LookupEnv("ENV_FILE"); ok {
		if err := godotenv.Load(file); err != nil {
			return c, fmt.Errorf("failed to load env variable ENV_FILE %s: %w", file, err)
		}
	}

	var errs []error

	for _, key := range requiredKeys {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if err := c.email.validate(); err != nil {
		errs = append(errs, err)
	}

	return c, errors.Join(errs...)
}

// validate checks that the selected driver has the settings it needs.
func (c emailConfig) validate() error {
	var missing []string

	switch c.driver {
	case "postmark":
		if c.postmark.ServerToken.IsZero() {
			missing = append(missing, "POSTMARK_API_TOKEN")
		}
	case "mailgun":
		if c.mailgun.Domain == "" {
			missing = append(missing, "MAILGUN_DOMAIN")
		}
		if c.mailgun.APIKey.IsZero() {
			missing = append(missing, "MAILGUN_API_KEY")
		}
	case "sendgrid":
		if c.sendgrid.APIKey.IsZero() {
			missing = append(missing, "SENDGRID_API_KEY")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("EMAIL_DRIVER %s requires env variables %s", c.driver, strings.Join(missing, ", "))
	}

	return nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b
	return nil
}

func confNonEmpty(v string, tgt *string) error {
	if v == "" {
		return errors.New("can't be empty")
	}

	*tgt = v
	return nil
}

// confURL parses v as an absolute URL.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q needs a scheme and host", v)
	}

	*tgt = u
	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	k, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = k
	return nil
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
