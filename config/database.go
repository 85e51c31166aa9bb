package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

func GetDB() *gorm.DB {
	return db
}

// SetDB installs an already opened connection (tests and cmd tools).
func SetDB(conn *gorm.DB) {
	db = conn
}

func init() {
	_ = godotenv.Load()
}

// mysqlDSN builds the trade store DSN from DB_* variables. A DB_HOST under
// /cloudsql/ is dialled as a unix socket.
func mysqlDSN() string {
	network, address := "tcp", os.Getenv("DB_HOST")+":"+os.Getenv("DB_PORT")
	if host := os.Getenv("DB_HOST"); strings.HasPrefix(host, "/cloudsql/") {
		network, address = "unix", host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC&transaction_isolation=%%27READ-COMMITTED%%27",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), network, address, os.Getenv("DB_NAME"))
}

// ConnectDatabaseWithRetry blocks until MySQL answers, then sets the global DB.
// main calls it after the HTTP listener is up so the readiness gate answers meanwhile.
func ConnectDatabaseWithRetry() {
	fields := logrus.Fields{"module": "config", "funcName": "ConnectDatabaseWithRetry"}
	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(mysqlDSN()), InitConfig())
		if err == nil {
			configurePool(conn)
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				GetLogger().WithFields(fields).WithError(pluginErr).Warn("otelgorm plugin not installed")
			}
			db = conn
			GetLogger().WithFields(fields).WithField("attempt", attempt).Info("connected to database")
			return
		}

		sleep := min(time.Second*time.Duration(1<<min(attempt, 5)), 30*time.Second)
		GetLogger().WithFields(fields).WithField("attempt", attempt).WithError(err).
			Warnf("database not reachable, retrying in %s", sleep)
		time.Sleep(sleep)
	}
}

// configurePool applies DB_MAX_OPEN_CONNS (50), DB_MAX_IDLE_CONNS (25),
// DB_CONN_MAX_LIFETIME_SECONDS (300) and DB_CONN_MAX_IDLE_TIME_SECONDS (60).
func configurePool(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if n := IntFromEnv("DB_MAX_OPEN_CONNS", 50); n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := IntFromEnv("DB_MAX_IDLE_CONNS", 25); n >= 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if n := IntFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); n > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(n) * time.Second)
	}
	if n := IntFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60); n > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(n) * time.Second)
	}
}

// CommandTimeout bounds a single orchestrated unit of work.
// DB_COMMAND_TIMEOUT_SECONDS (default 30, 0 disables).
func CommandTimeout() time.Duration {
	return time.Duration(IntFromEnv("DB_COMMAND_TIMEOUT_SECONDS", 30)) * time.Second
}

func IntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// InitConfig is shared by the MySQL connection and test dialectors so both
// translate driver errors the same way.
func InitConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormLogger(),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// gormLogger writes every statement to GORM_LOG when set; otherwise only
// errors and queries slower than a second reach stdout.
func gormLogger() logger.Interface {
	cfg := logger.Config{
		LogLevel:                  logger.Error,
		SlowThreshold:             time.Second,
		IgnoreRecordNotFoundError: true,
	}
	out := os.Stdout
	if path := os.Getenv("GORM_LOG"); path != "" {
		if f, err := os.Create(path); err == nil {
			out = f
			cfg.LogLevel = logger.Info
		}
	}
	return logger.New(log.New(out, "\r\n", log.LstdFlags), cfg)
}
