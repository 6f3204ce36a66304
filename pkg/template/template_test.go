package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/config"
)

func TestGenerator_Generate(t *testing.T) {
	generator := NewGenerator()

	tests := []struct {
		name         string
		templateType TemplateType
		expectError  bool
		validate     func(*testing.T, *ConfigTemplate)
	}{
		{
			name:         "minimal",
			templateType: TypeMinimal,
			validate: func(t *testing.T, tmpl *ConfigTemplate) {
				assert.Equal(t, "127.0.0.1:8765", tmpl.HTTP.Listen)
				assert.Empty(t, tmpl.HTTP.Token)
				assert.Nil(t, tmpl.ConsoleLog)
				assert.Nil(t, tmpl.Metrics)
				assert.False(t, tmpl.Server.AutoStart)
			},
		},
		{
			name:         "basic_alias",
			templateType: TypeBasic,
			validate: func(t *testing.T, tmpl *ConfigTemplate) {
				assert.Nil(t, tmpl.History)
			},
		},
		{
			name:         "api",
			templateType: TypeAPI,
			validate: func(t *testing.T, tmpl *ConfigTemplate) {
				assert.Equal(t, "change-me", tmpl.HTTP.Token)
				require.NotNil(t, tmpl.ConsoleLog)
				assert.Equal(t, "logs/survival-console.log", tmpl.ConsoleLog.Path)
				assert.True(t, tmpl.Server.AutoStart)
			},
		},
		{
			name:         "full",
			templateType: TypeFull,
			validate: func(t *testing.T, tmpl *ConfigTemplate) {
				require.NotNil(t, tmpl.HTTP.TLS)
				assert.True(t, tmpl.HTTP.TLS.AutoGenerate)
				require.NotNil(t, tmpl.Metrics)
				require.NotNil(t, tmpl.History)
				assert.Len(t, tmpl.History.Sinks, 1)
				assert.NotEmpty(t, tmpl.Server.JVMArgs)
			},
		},
		{
			name:         "unknown",
			templateType: "bungee",
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := generator.Generate(tt.templateType, Options{Name: "survival", MaxMem: "6G"})
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "supported: minimal, api, full")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "survival", tmpl.Server.Name)
			assert.Equal(t, "server.jar", tmpl.Server.Jar)
			assert.Equal(t, "1G", tmpl.Server.MinMem)
			assert.Equal(t, "6G", tmpl.Server.MaxMem)
			assert.Equal(t, "stop", tmpl.Server.StopCommand)
			tt.validate(t, tmpl)
		})
	}
}

func TestGenerator_GenerateTOML(t *testing.T) {
	data, err := NewGenerator().GenerateTOML(TypeMinimal, Options{Jar: "paper.jar"})
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "jar = 'paper.jar'")
	assert.Contains(t, out, "stop_timeout = '30s'")
	assert.NotContains(t, out, "[metrics]")
	assert.NotContains(t, out, "token")
}

func TestGenerator_GenerateTOML_Unknown(t *testing.T) {
	_, err := NewGenerator().GenerateTOML("nope", Options{})
	require.Error(t, err)
}

// Every generated file must load through the real config loader.
func TestGenerator_TemplatesLoad(t *testing.T) {
	generator := NewGenerator()
	for _, typ := range generator.GetSupportedTypes() {
		t.Run(typ, func(t *testing.T) {
			data, err := generator.GenerateTOML(TemplateType(typ), Options{Jar: "/srv/mc/server.jar"})
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "consolr.toml")
			require.NoError(t, os.WriteFile(path, data, 0o600))

			cfg, err := config.Load(path)
			require.NoError(t, err, string(data))
			assert.Equal(t, "/srv/mc/server.jar", cfg.Server.Jar)
			assert.Equal(t, 30*time.Second, cfg.Server.StopTimeout)
			assert.Equal(t, "/api", cfg.HTTP.BasePath)
			if typ == string(TypeFull) {
				assert.True(t, cfg.HTTP.TLS.Enabled)
				assert.True(t, cfg.Metrics.Enabled)
				assert.True(t, strings.HasPrefix(cfg.History.Sinks[0], "sqlite://"))
			}
		})
	}
}
