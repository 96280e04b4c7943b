package main

import (
	"log/slog"
	"os"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/configuration"
	"gradewatch-backend/lib/telemetry"
)

type NotifyConfig struct {
	Desktop bool   `json:"desktop"`
	Icon    string `json:"icon"`
	Webhook string `json:"webhook"`
}

type Config struct {
	Port      int    `json:"port"`
	Verbose   bool   `json:"verbose"`
	LoginUrl  string `json:"login_url"`
	GradesUrl string `json:"grades_url"`
	CacheFile string `json:"cache_file"`

	Notify    NotifyConfig     `json:"notify"`
	Browser   browser.Config   `json:"browser"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func MustLoadConfig(path string) Config {
	config, err := configuration.Read[Config](path)
	if err != nil && !os.IsNotExist(err) {
		slog.Error("failed to load config file", "path", path, "err", err)
		os.Exit(1)
	}
	if os.IsNotExist(err) {
		slog.Info("no config file found, using defaults", "path", path)
	}

	if config.Port == 0 {
		config.Port = 3001
	}
	if config.LoginUrl == "" {
		config.LoginUrl = "https://register.nu.edu.eg/PowerCampusSelfService/Home/LogIn"
	}
	if config.GradesUrl == "" {
		config.GradesUrl = "https://register.nu.edu.eg/PowerCampusSelfService/Grades/GradeReport"
	}
	if config.CacheFile == "" {
		config.CacheFile = "grades_cache.json"
	}

	return config
}
