package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nredis_mode:standalone\r\n\r\n# Clients\r\nconnected_clients:3\r\n"

	stats := parseInfo(info)

	assert.Equal(t, map[string]string{
		"redis_version":     "7.2.4",
		"connected_clients": "3",
	}, stats)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "cache:6380", Config{Host: "cache", Port: "6380"}.Addr())
}
