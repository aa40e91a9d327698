package agent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", `"2025-01-02T03:04:05Z"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"rfc3339 offset", `"2025-01-02T05:04:05+02:00"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"python isoformat", `"2025-01-02T03:04:05.250000"`, time.Date(2025, 1, 2, 3, 4, 5, 250000000, time.UTC)},
		{"python str", `"2025-01-02 03:04:05"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"python str with zone", `"2025-01-02 03:04:05.5+00:00"`, time.Date(2025, 1, 2, 3, 4, 5, 500000000, time.UTC)},
		{"date only", `"2025-01-02"`, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"epoch seconds", `1735787045`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"epoch millis", `1735787045000`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"numeric string", `"1735787045"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v want %v", ts.Time, tt.want)
		})
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestTimestampMarshal(t *testing.T) {
	data, err := json.Marshal(Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02T03:04:05Z"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))
}

func TestProductImage(t *testing.T) {
	tests := []struct {
		name  string
		image string
		want  string
	}{
		{name: "image kept", image: "https://a.example/x.png", want: "https://a.example/x.png"},
		{name: "empty falls back", image: "", want: PlaceholderImage},
		{name: "agent marker falls back", image: "No Image", want: PlaceholderImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProductImage(Product{Image: tt.image}))
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Laptop", PlainText("<script>alert(1)</script>Laptop"))
	assert.Equal(t, "Fast & light", PlainText("<i>Fast &amp; light</i>"))
}
