package config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func getValidRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Sampling: SamplingConfig{
			Enabled:  true,
			Interval: 50 * time.Millisecond,
		},
		InitRegisters: map[string]byte{
			"BW_RATE":   0x0A,
			"POWER_CTL": 0x08,
		},
	}
}

func writeInitialConfig(t *testing.T) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yml")

	baseRuntime := getValidRuntimeConfig()
	initialConfig := Config{
		Hardware: HardwareConfig{
			GPIOLibrary:  "rpio",
			SPIFrequency: 1000000,
			SPIMode:      3,
			Devices: map[string]DeviceConfig{
				"accel0": {ChipSelect: 0},
			},
		},
		Sampling:      baseRuntime.Sampling,
		InitRegisters: baseRuntime.InitRegisters,
	}

	data, err := yaml.Marshal(initialConfig)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, data, 0o644))
	return configFile
}

func TestConfigHandler_Get(t *testing.T) {
	configFile := writeInitialConfig(t)
	handler := ConfigHandler(configFile)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got RuntimeConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, getValidRuntimeConfig(), got)
}

func TestConfigHandler_MethodNotAllowed(t *testing.T) {
	handler := ConfigHandler(writeInitialConfig(t))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestConfigHandler_SetValidation(t *testing.T) {
	configFile := writeInitialConfig(t)

	tests := []struct {
		name         string
		payload      RuntimeConfig
		wantStatus   int
		wantErrorMsg string
		shouldModify bool
	}{
		{
			name: "Valid Update",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.Sampling.Interval = 250 * time.Millisecond
				c.InitRegisters["DATA_FORMAT"] = 0x0B
				return c
			}(),
			wantStatus:   http.StatusOK,
			shouldModify: true,
		},
		{
			name: "Unknown Register",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.InitRegisters["NOT_A_REGISTER"] = 1
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "unknown_register",
		},
		{
			name: "Read-only Register",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.InitRegisters["DATAX0"] = 1
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "is read-only",
		},
		{
			name: "Zero Interval",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.Sampling.Interval = 0
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "must be positive",
		},
	}

	handler := ConfigHandler(configFile)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := ReadConfig(configFile)
			require.NoError(t, err)

			body, _ := json.Marshal(tt.payload)
			req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBuffer(body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantErrorMsg != "" {
				assert.Contains(t, w.Body.String(), tt.wantErrorMsg)
			}

			currentConfig, err := ReadConfig(configFile)
			require.NoError(t, err)

			if tt.shouldModify {
				assert.Equal(t, tt.payload.Sampling, currentConfig.Sampling)
				assert.Equal(t, tt.payload.InitRegisters, currentConfig.InitRegisters)
			} else {
				assert.Equal(t, before.Sampling, currentConfig.Sampling)
				assert.Equal(t, before.InitRegisters, currentConfig.InitRegisters)
			}
			// Hardware wiring must survive every update.
			assert.Equal(t, before.Hardware, currentConfig.Hardware)
		})
	}
}

func TestConfigHandler_SetInvalidJSON(t *testing.T) {
	handler := ConfigHandler(writeInitialConfig(t))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
}
