package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"feed_updater/internal/domain"
)

func TestShouldSkip(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		src  domain.Source
		want bool
	}{
		{
			name: "never updated",
			src:  domain.Source{},
			want: false,
		},
		{
			name: "recently updated without validators",
			src:  domain.Source{LastUpdated: lo.ToPtr(now.Add(-time.Hour))},
			want: true,
		},
		{
			name: "cooldown elapsed",
			src:  domain.Source{LastUpdated: lo.ToPtr(now.Add(-7 * time.Hour))},
			want: false,
		},
		{
			name: "exactly at cooldown",
			src:  domain.Source{LastUpdated: lo.ToPtr(now.Add(-6 * time.Hour))},
			want: false,
		},
		{
			name: "recent with etag",
			src:  domain.Source{ETag: lo.ToPtr(`"v"`), LastUpdated: lo.ToPtr(now.Add(-time.Minute))},
			want: false,
		},
		{
			name: "recent with last-modified",
			src:  domain.Source{Modified: lo.ToPtr("Sat, 15 Jun 2024 11:00:00 GMT"), LastUpdated: lo.ToPtr(now.Add(-time.Minute))},
			want: false,
		},
		{
			name: "clock skew into the future",
			src:  domain.Source{LastUpdated: lo.ToPtr(now.Add(time.Hour))},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSkip(tt.src, now, DefaultCooldown))
		})
	}
}
