package container

import (
	"github.com/gin-gonic/gin"
	"github.com/ieeeucsd/dashboard-finance/internal/config"
	httpapi "github.com/ieeeucsd/dashboard-finance/internal/interfaces/http"
	"github.com/ieeeucsd/dashboard-finance/pkg/database"
	"github.com/ieeeucsd/dashboard-finance/pkg/utils"
)

// databaseConfig maps the database section onto the connection settings
func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		BusyTimeout:     cfg.Database.BusyTimeout,
	}
}

// serverConfig maps the server section onto the HTTP adapter settings,
// falling back to the adapter defaults for unset values
func serverConfig(cfg *config.Config) httpapi.ServerConfig {
	sc := httpapi.DefaultServerConfig()
	if cfg.Server.Host != "" {
		sc.Host = cfg.Server.Host
	}
	if cfg.Server.Port > 0 {
		sc.Port = cfg.Server.Port
	}
	if cfg.Server.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.MaxUploadBytes > 0 {
		sc.MaxUploadBytes = cfg.Server.MaxUploadBytes
	}
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode, gin.ReleaseMode:
		sc.Mode = cfg.Server.Mode
	}
	return sc
}

// LoggerConfig maps the logger section onto the zap constructor settings
func LoggerConfig(cfg *config.Config) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}
}
