// pkg/db/repository.go
package db

import (
	"fmt"
	"strconv"

	"github.com/smith3v/aquamind/pkg/config"
	"github.com/smith3v/aquamind/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Export DB variable
var DB *gorm.DB

func InitDB(cfg config.StoreConfig) error {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		logger.Error("unsupported store driver", "driver", cfg.Driver, "error", err)
		return err
	}
	gormLogger, gormErr := newGormLogger(config.AppConfig.Logging.GormLevel)
	if gormErr != nil {
		logger.Error("invalid gorm log level", "value", config.AppConfig.Logging.GormLevel, "error", gormErr)
	}
	DB, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	if err := Migrate(DB); err != nil {
		logger.Error("failed to auto-migrate database", "error", err)
		return err
	}
	return nil
}

func Migrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(&User{}, &ReplyLog{})
}

func dialectorFor(cfg config.StoreConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := "host=" + cfg.Database.Host +
			" user=" + cfg.Database.User +
			" password=" + cfg.Database.Password +
			" dbname=" + cfg.Database.DBName +
			" port=" + strconv.Itoa(cfg.Database.Port) +
			" sslmode=" + cfg.Database.SSLMode
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("driver %q is not backed by a database", cfg.Driver)
	}
}
