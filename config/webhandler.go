package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the runtime-safe part of the config file at
// /api/config. GET returns it as JSON; POST merges a JSON RuntimeConfig into
// the file on disk. Rewriting the file is what triggers the reload.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serveRuntimeConfig(w, cfile)
		case http.MethodPost:
			updateRuntimeConfig(w, r, cfile)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// Runtime extracts the subset of c that may change without a restart.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Sampling:      c.Sampling,
		InitRegisters: c.InitRegisters,
	}
}

// ApplyRuntime replaces the runtime-safe settings of c.
func (c *Config) ApplyRuntime(rc RuntimeConfig) {
	c.Sampling = rc.Sampling
	c.InitRegisters = rc.InitRegisters
}

func serveRuntimeConfig(w http.ResponseWriter, cfile string) {
	// The file is the source of truth, not the running configuration.
	conf, err := ReadConfig(cfile)
	if err != nil {
		slog.Error("Config API cannot read config file", "file", cfile, "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(conf.Runtime()); err != nil {
		slog.Error("Config API cannot encode runtime config", "error", err)
	}
}

func updateRuntimeConfig(w http.ResponseWriter, r *http.Request, cfile string) {
	defer r.Body.Close()

	var rc RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		slog.Warn("Config API received malformed JSON", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conf, err := ReadConfig(cfile)
	if err != nil {
		slog.Error("Config API cannot read config file", "file", cfile, "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	conf.ApplyRuntime(rc)
	if err := conf.Validate(); err != nil {
		slog.Warn("Config API rejected runtime config", "error", err)
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	if err := writeConfig(cfile, conf); err != nil {
		slog.Error("Config API cannot save config file", "file", cfile, "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("Runtime config saved, reload pending", "file", cfile)
	fmt.Fprintln(w, "Configuration updated successfully.")
}

func writeConfig(cfile string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(cfile, data, 0o644)
}
