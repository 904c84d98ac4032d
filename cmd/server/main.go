package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"relmodels/internal/api"
	"relmodels/internal/config"
	"relmodels/internal/models"
)

func main() {
	// glog регистрирует свои флаги (-v, -logtostderr) в flag.CommandLine
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	defer glog.Flush()

	opts := []models.Option{models.WithDangling(cfg.AllowDangling)}
	if cfg.IDStrategy == "ulid" {
		opts = append(opts, models.WithAllocator(models.NewULIDAllocator()))
	}
	boot := api.Bootstrap{
		SchemaDir: cfg.SchemaDir,
		SeedDir:   cfg.SeedDir,
		Indexes:   cfg.Indexes,
		Options:   opts,
	}

	// 1. Схема + начальные данные
	ms, issues, err := boot.Build()
	if err != nil {
		glog.Exitf("bootstrap: %v", err)
	}
	for _, it := range issues {
		glog.Warningf("schema lint: %s.%s [%s]: %s", it.Model, it.Field, it.Code, it.Message)
	}
	glog.Infof("loaded %d models from %s", len(ms.Names()), cfg.SchemaDir)

	// 2. HTTP
	glog.Infof("starting relmodels on %s", cfg.Addr())
	if err := api.RunServer(cfg.Addr(), api.NewServer(ms, boot)); err != nil {
		glog.Errorf("server: %v", err)
	}
}
