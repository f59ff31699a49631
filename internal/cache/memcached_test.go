package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddrs(t *testing.T) {
	assert.Equal(t, []string{"a:11211", "b:11211"}, parseAddrs(" a:11211, ,b:11211 "))
	assert.Nil(t, parseAddrs(""))
}

func TestExpiration(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Equal(t, int32(3600), expiration(time.Hour, now))
	assert.Equal(t, int32(maxRelativeExp), expiration(30*24*time.Hour, now))
	assert.Equal(t, int32(now.Add(45*24*time.Hour).Unix()), expiration(45*24*time.Hour, now), "long TTLs become absolute timestamps")
	assert.Equal(t, int32(0), expiration(0, now))
}

func TestNewMemcachedCache_Defaults(t *testing.T) {
	c, err := NewMemcachedCache("", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.ttl)
}
