package connector_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/local"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/mock"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/rawurl"
)

func TestFactory(t *testing.T) {
	f := connector.NewFactory(
		local.NewWithFs(afero.NewMemMapFs(), nil),
		rawurl.New(&rawurl.Config{}, nil),
		mock.New(),
	)

	tests := []struct {
		url      string
		wantType string
		wantErr  string
	}{
		{url: "file:///apis/a.json", wantType: "local"},
		{url: "https://example.com/a.yaml", wantType: "url"},
		{url: "HTTP://example.com/a.yaml", wantType: "url"},
		{url: "mock://a", wantType: "mock"},
		{url: "s3://bucket/key", wantErr: "no connector for scheme"},
		{url: "relative/path", wantErr: "has no scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c, err := f.ForURL(tt.url)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, c.Type())
		})
	}

	c, err := f.ForType("local")
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, c.Schemes())

	_, err = f.ForType("github")
	assert.Error(t, err)
}

func TestRevision(t *testing.T) {
	assert.Equal(t, connector.Revision("a"), connector.Revision("a"))
	assert.NotEqual(t, connector.Revision("a"), connector.Revision("b"))
	assert.Contains(t, connector.Revision(""), "sha256:")
}
