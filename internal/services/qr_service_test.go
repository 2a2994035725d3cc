package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQRService_Generate(t *testing.T) {
	service := NewQRService("https://avelio.app/verify/%s")

	t.Run("returns a png data uri", func(t *testing.T) {
		dataURI, err := service.Generate("KSH-CR-JUB-20260315-0042")
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(dataURI, "data:image/png;base64,"))

		encoded := strings.TrimPrefix(dataURI, "data:image/png;base64,")
		png, err := base64.StdEncoding.DecodeString(encoded)
		assert.NoError(t, err)
		// PNG magic bytes
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
	})

	t.Run("distinct receipts produce distinct codes", func(t *testing.T) {
		a, err := service.Generate("KSH-CR-JUB-20260315-0001")
		assert.NoError(t, err)
		b, err := service.Generate("KSH-CR-JUB-20260315-0002")
		assert.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}
