package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tomasrv/tienda-backend/internal/config"
)

func TestMustLoadByPath_Success(t *testing.T) {
	os.Setenv("DB_PASSWORD", "mypassword")
	os.Setenv("JWT_SECRET", "mysecret")
	defer os.Unsetenv("DB_PASSWORD")
	defer os.Unsetenv("JWT_SECRET")

	content := `
env: "local"
http_server:
  address: "localhost:8080"
  timeout: "4s"
  idle_timeout: "60s"
database:
  host: "localhost"
  port: 5432
  user: "postgres"
  name: "tienda"
jwt:
  token_ttl: 60
migrations:
  path: "./migrations"
webpay:
  environment: "integration"
  commerce_code: "597055555532"
urls:
  backend: "http://localhost:8080"
  frontend: "http://localhost:3000"
notify:
  from: "no-reply@tienda.local"
  owner_email: "pedidos@tienda.local"
`
	tmpFile, err := os.CreateTemp("", "config_test_*.yaml")
	assert.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(content)
	assert.NoError(t, err)
	assert.NoError(t, tmpFile.Close())

	cfg := config.MustLoadByPath(tmpFile.Name())

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "localhost:8080", cfg.HTTPServer.Address)
	assert.Equal(t, 4*time.Second, cfg.HTTPServer.Timeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPServer.IdleTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "tienda", cfg.Database.Name)
	assert.Equal(t, "mypassword", cfg.Database.Password)
	assert.Equal(t, "mysecret", cfg.JWT.Secret)
	assert.Equal(t, "integration", cfg.Webpay.Environment)
	assert.Equal(t, "597055555532", cfg.Webpay.CommerceCode)
	assert.Equal(t, "http://localhost:8080", cfg.URLs.Backend)
	assert.Equal(t, "http://localhost:3000", cfg.URLs.Frontend)
	assert.Equal(t, "pedidos@tienda.local", cfg.Notify.OwnerEmail)
}

func TestMustLoadByPath_FileNotFound(t *testing.T) {
	assert.Panics(t, func() {
		config.MustLoadByPath("non_existent_config.yaml")
	})
}
