package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url  string
		opts URLOptions
		ok   bool
	}{
		{"https://api.openai.com/v1", URLOptions{}, true},
		{"http://api.example.com", URLOptions{}, false},
		{"http://api.example.com", URLOptions{AllowHTTP: true}, true},
		{"ftp://example.com/x", URLOptions{AllowHTTP: true}, false},
		{"https://", URLOptions{}, false},
		{"https://localhost:8080", URLOptions{}, false},
		{"https://printer.local", URLOptions{}, false},
		{"https://127.0.0.1", URLOptions{}, false},
		{"https://10.1.2.3", URLOptions{}, false},
		{"https://[::ffff:192.168.1.1]", URLOptions{}, false},
		{"https://[fe80::1%25eth0]/", URLOptions{}, false},
		{"https://0.0.0.0", URLOptions{}, false},
		{"https://8.8.8.8", URLOptions{}, true},
		{"http://localhost:11434/v1", URLOptions{AllowHTTP: true, AllowLocalNetworks: true}, true},
		{"https://[fe80::1%25eth0]/", URLOptions{AllowLocalNetworks: true}, true},
	}
	for _, c := range cases {
		err := ValidateURL(c.url, c.opts)
		if c.ok {
			assert.NoError(t, err, c.url)
		} else {
			assert.Error(t, err, c.url)
		}
	}
}

func TestValidateImageURL(t *testing.T) {
	assert.NoError(t, ValidateImageURL("data:image/png;base64,iVBORw0KGgo="))
	assert.NoError(t, ValidateImageURL("http://images.example.com/receipt.jpg"))
	assert.NoError(t, ValidateImageURL(" https://images.example.com/receipt.jpg "))
	assert.Error(t, ValidateImageURL("data:text/html;base64,PGgxPg=="))
	assert.Error(t, ValidateImageURL("data:image/png;base64"))
	assert.Error(t, ValidateImageURL("http://192.168.0.10/cam.jpg"))
	assert.Error(t, ValidateImageURL("file:///etc/passwd"))
}
