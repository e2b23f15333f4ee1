package repo

import (
	"fmt"
	"log"

	"bj-service/internal/config"
	"bj-service/internal/model"
	"bj-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	conf := config.GlobalConfig.Database
	dialector, err := openDialector(conf.Driver, conf.DSN)
	if err != nil {
		logger.Log.Fatal("Unsupported database driver", zap.Error(err))
	}

	DB, err = gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.String("driver", conf.Driver),
			zap.Error(err),
		)
	}

	if err := DB.AutoMigrate(model.AllModels()...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("database driver %q", driver)
	}
}
