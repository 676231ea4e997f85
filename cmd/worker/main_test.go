package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_defaultV(t *testing.T) {
	assert.Equal(t, time.Second*5, defaultV(time.Duration(0), time.Second*5))
	assert.Equal(t, time.Second*2, defaultV(time.Second*2, time.Second*5))
	assert.Equal(t, time.Minute*30, defaultV(time.Duration(0), time.Minute*30))
	assert.Equal(t, "yamnet-wav2vec2-emotion", defaultV("", "yamnet-wav2vec2-emotion"))
	assert.Equal(t, "experimental", defaultV("experimental", "yamnet-wav2vec2-emotion"))
	assert.Equal(t, "1.0.0", defaultV("", "1.0.0"))
	assert.Equal(t, 8000, defaultV(0, 8000))
}
