package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"plexedit/plexos/model"
	"plexedit/plexos/schema"
	"plexedit/plexos/services"
	"plexedit/plexos/xmlio"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(config serverConfig) *gorm.DB {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var db *gorm.DB
	var err error
	if config.PostgresUri != "" {
		db, err = gorm.Open(postgres.Open(config.PostgresUri), gormConfig)
	} else {
		storePath := config.StorePath
		if storePath == "" {
			storePath = "file::memory:"
		}
		db, err = gorm.Open(sqlite.Open(storePath), gormConfig)
	}
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.Tables()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	configFile := flag.String("config", "", "Yaml config file for the server.")
	port := flag.Int("port", 0, "Port to run server on. Overrides the config file value.")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	config, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	if *port != 0 {
		config.Port = *port
	}

	err = os.MkdirAll(config.LogDir, 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}
	logFile, err := os.OpenFile(filepath.Join(config.LogDir, "plexedit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	initLogging(logFile)

	db := initDb(config)

	if config.Document != "" {
		document, err := os.Open(config.Document)
		if err != nil {
			log.Fatalf("error opening document '%v': %v", config.Document, err)
		}
		err = xmlio.Load(document, db)
		document.Close()
		if err != nil {
			log.Fatalf("error loading document '%v': %v", config.Document, err)
		}
	}

	m, err := model.Open(db)
	if err != nil {
		log.Fatalf("error opening model: %v", err)
	}

	service := services.NewModelService(db, m)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Mount("/api/v1", service.Routes())

	slog.Info("starting server", "port", config.Port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
