// Package preflight holds single-attempt reachability checks that gate a
// provisioning step. A failed check fails the step; nothing is retried.
package preflight

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	DefaultDSNEnv  = "DATABASE_URL"
	DefaultTimeout = 5 * time.Second
)

// Variables the Django settings read the database connection from
const (
	EnvEngine   = "DB_DRIVER"
	EnvName     = "POSTGRES_DB"
	EnvUser     = "POSTGRES_USER"
	EnvPassword = "POSTGRES_PASSWORD"
	EnvHost     = "PG_HOST"
	EnvPort     = "PG_PORT"
)

// DatabaseCheck verifies the database accepts connections before migrations run
type DatabaseCheck struct {
	Driver  string        `yaml:"driver"`
	DSN     string        `yaml:"dsn,omitempty"`
	DSNEnv  string        `yaml:"dsn_env,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Pinger opens a connection for dsn and pings it once
type Pinger func(ctx context.Context, dsn string) error

type DatabaseChecker struct {
	config DatabaseCheck
	pinger Pinger
	logger logging.Logger
}

// NewDatabaseChecker returns a check bound to the driver's Pinger
func NewDatabaseChecker(config DatabaseCheck, logger logging.Logger) (*DatabaseChecker, error) {
	config = config.WithDefaults()
	if err := ValidateDatabaseCheck(config); err != nil {
		return nil, err
	}

	var pinger Pinger
	switch config.Driver {
	case DriverPostgres:
		pinger = pingPostgres
	case DriverMySQL:
		pinger = pingMySQL
	}

	return newDatabaseCheckerWithPinger(config, pinger, logger), nil
}

func newDatabaseCheckerWithPinger(config DatabaseCheck, pinger Pinger, logger logging.Logger) *DatabaseChecker {
	return &DatabaseChecker{
		config: config,
		pinger: pinger,
		logger: logger,
	}
}

func (c *DatabaseChecker) Name() string {
	return "database:" + c.config.Driver
}

func (c *DatabaseChecker) Check(ctx context.Context) error {
	dsn, err := c.config.ResolveDSN()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	c.logger.Infof("Checking database connectivity, driver: %s, timeout: %v", c.config.Driver, c.config.Timeout)

	start := time.Now()
	if err := c.pinger(ctx, dsn); err != nil {
		c.logger.Errorf("Database is not reachable, driver: %s, error: %v", c.config.Driver, err)
		return errors.NewNetworkError("database is not reachable", err).WithContext("driver", c.config.Driver)
	}

	c.logger.Infof("Database is reachable, driver: %s, elapsed: %v", c.config.Driver, time.Since(start))
	return nil
}

// WithDefaults fills unset fields
func (c DatabaseCheck) WithDefaults() DatabaseCheck {
	if c.Driver == "" {
		c.Driver = DriverFromEngine(os.Getenv(EnvEngine))
	}
	c.Driver = strings.ToLower(c.Driver)
	if c.DSN == "" && c.DSNEnv == "" {
		c.DSNEnv = DefaultDSNEnv
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// ResolveDSN returns the inline DSN, the DSN from the configured environment
// variable, or one built from the Django settings variables when PG_HOST is set.
func (c DatabaseCheck) ResolveDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.DSNEnv != "" {
		if dsn := os.Getenv(c.DSNEnv); dsn != "" {
			return dsn, nil
		}
	}
	if os.Getenv(EnvHost) != "" {
		return c.settingsDSN(), nil
	}
	return "", errors.NewValidationError("no database DSN: "+c.DSNEnv+" and "+EnvHost+" are both empty", nil).
		WithContext("dsn_env", c.DSNEnv)
}

func (c DatabaseCheck) settingsDSN() string {
	host := os.Getenv(EnvHost)
	port := os.Getenv(EnvPort)
	name := os.Getenv(EnvName)
	user := os.Getenv(EnvUser)
	password := os.Getenv(EnvPassword)

	if c.Driver == DriverMySQL {
		if port == "" {
			port = "3306"
		}
		cfg := mysql.NewConfig()
		cfg.User = user
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, port)
		cfg.DBName = name
		return cfg.FormatDSN()
	}

	if port == "" {
		port = "5432"
	}
	dsn := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if user != "" {
		dsn.User = url.UserPassword(user, password)
	}
	return dsn.String()
}

// DriverFromEngine maps a Django ENGINE setting to a check driver.
// Empty means the settings default, PostgreSQL.
func DriverFromEngine(engine string) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	switch {
	case engine == "":
		return DriverPostgres
	case strings.Contains(engine, "postgres"), strings.Contains(engine, "postgis"):
		return DriverPostgres
	case strings.Contains(engine, "mysql"):
		return DriverMySQL
	}
	return engine
}

// ValidateDatabaseCheck validates a database check configuration
func ValidateDatabaseCheck(c DatabaseCheck) error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return errors.NewValidationError("unsupported database driver: "+c.Driver, nil).
			WithContext("supported_drivers", "postgres, mysql")
	}
	if c.Timeout < 0 {
		return errors.NewValidationError("database check timeout cannot be negative", nil)
	}
	return nil
}

func pingPostgres(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func pingMySQL(ctx context.Context, dsn string) error {
	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	return db.PingContext(ctx)
}
