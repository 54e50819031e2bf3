package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	for _, c := range AllContentTypes {
		got, err := ParseContentType(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseContentType("hologram")
	assert.Error(t, err)
}

func TestArtifactResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		art     ArtifactResult
		wantErr bool
	}{
		{
			name: "matching_payload",
			art:  ArtifactResult{ContentType: ContentImage, Image: &ImageArtifact{URL: "u"}},
		},
		{
			name:    "no_payload",
			art:     ArtifactResult{ContentType: ContentBlog},
			wantErr: true,
		},
		{
			name:    "wrong_payload",
			art:     ArtifactResult{ContentType: ContentVideo, Podcast: &PodcastArtifact{}},
			wantErr: true,
		},
		{
			name: "two_payloads",
			art: ArtifactResult{
				ContentType: ContentBlog,
				Blog:        &BlogArtifact{},
				Image:       &ImageArtifact{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.art.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuotaState_Remaining(t *testing.T) {
	assert.Equal(t, 3, QuotaState{Used: 2, Limit: 5}.Remaining())
	assert.Equal(t, 0, QuotaState{Used: 5, Limit: 5}.Remaining())
}

func TestGenerationResult_Artifact(t *testing.T) {
	res := GenerationResult{Artifacts: []ArtifactResult{
		{ContentType: ContentBlog, ProducedBy: "openai"},
		{ContentType: ContentVideo, ProducedBy: ProducedByFallback},
	}}

	a, ok := res.Artifact(ContentVideo)
	require.True(t, ok)
	assert.True(t, a.Degraded())

	_, ok = res.Artifact(ContentImage)
	assert.False(t, ok)
}
