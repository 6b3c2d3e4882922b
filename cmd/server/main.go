package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/app"
	"github.com/shrimpsizemoose/narvaro/internal/handlers"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	if err := service.Store.ApplyMigrations(service.Config.Database.MigrationsDir); err != nil {
		logger.Error.Fatalf("Failed to apply migrations: %v", err)
	}

	if err := service.SeedDemoUsers(); err != nil {
		logger.Error.Fatalf("Failed to seed demo users: %v", err)
	}

	authHandler := handlers.NewAuthHandler(service)
	attendanceHandler := handlers.NewAttendanceHandler(service)
	liveHandler := handlers.NewLiveHandler(service)

	http.HandleFunc("POST /api/v1/login", authHandler.HandleLogin)
	http.HandleFunc("POST /api/v1/logout", authHandler.HandleLogout)
	http.HandleFunc("POST /api/v1/students", authHandler.HandleAddStudent)
	http.HandleFunc("GET /api/v1/students", authHandler.HandleListStudents)

	http.HandleFunc("POST /api/v1/attendance/mark", attendanceHandler.HandleMark)
	http.HandleFunc("POST /api/v1/attendance/manual", attendanceHandler.HandleManualMark)
	http.HandleFunc("POST /api/v1/attendance/bulk", attendanceHandler.HandleBulkMark)
	http.HandleFunc("GET /api/v1/attendance/{date}", attendanceHandler.HandleDayRecords)
	http.HandleFunc("GET /api/v1/stats", attendanceHandler.HandleStats)

	http.HandleFunc("GET /api/v1/qr", liveHandler.HandleQRRefresh)
	http.HandleFunc("GET /api/v1/live", liveHandler.HandleEvents)

	http.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting narvaro server on %s", service.Config.Server.Port)
	logger.Debug.Printf("Checkpoints: %v", service.Config.Attendance.Checkpoints)
	logger.Debug.Printf("Token TTL: %ds, QR refresh: %ds",
		service.Config.Token.ValiditySeconds,
		service.Config.Token.QRRefreshRateSeconds,
	)
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Narvaro server failed: %v", err)
	}
}
