package db

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/arwahdevops/tablesync/internal/config"
)

// BuildDSN renders the driver connection string. timeout bounds connection
// establishment only; running statements are not limited.
func BuildDSN(cfg config.DatabaseConfig, username, password string, timeout time.Duration) (string, error) {
	switch strings.ToLower(cfg.Dialect) {
	case "postgres":
		secs := int(math.Ceil(timeout.Seconds()))
		if secs < 1 {
			secs = 1
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(username, password),
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:   "/" + cfg.DBName,
		}
		q := url.Values{}
		q.Set("sslmode", strings.ToLower(cfg.SSLMode))
		q.Set("connect_timeout", strconv.Itoa(secs))
		q.Set("application_name", "tablesync")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case "mysql":
		mc := gomysql.NewConfig()
		mc.User = username
		mc.Passwd = password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Timeout = timeout
		mc.Params = map[string]string{"charset": "utf8mb4"}
		switch strings.ToLower(cfg.SSLMode) {
		case "", "disable":
		case "skip-verify", "prefer", "preferred", "allow":
			mc.TLSConfig = "skip-verify"
		default:
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN(), nil
	case "sqlite":
		ms := timeout.Milliseconds()
		return fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.DBName, ms), nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s", cfg.Dialect)
	}
}
