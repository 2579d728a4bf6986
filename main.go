package main

import (
	"os"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/server"
)

const serviceName = "booking-calendar"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Main:LoadConfig:Error", "error", err)
		os.Exit(1)
	}

	logger.Init(serviceName, cfg.Server.Env)
	logger.SetLevel(cfg.Server.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Main:ValidateConfig:Error", "error", err)
		os.Exit(1)
	}

	if err := server.Run(cfg); err != nil {
		logger.Error("Main:Run:Error", "error", err)
		os.Exit(1)
	}
}
