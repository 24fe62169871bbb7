package resize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongImageDecider(t *testing.T) {
	t.Parallel()

	d := NewLongImageDecider()
	assert.True(t, d.IsLongImage(100, 1000, 400, 400))
	assert.True(t, d.IsLongImage(1000, 100, 400, 400))
	assert.False(t, d.IsLongImage(300, 400, 400, 400))
	assert.False(t, d.IsLongImage(0, 400, 400, 400))
	assert.Equal(t, "LongImageDecider(3.0)", d.String())
}

func TestLongImageDeciders(t *testing.T) {
	t.Parallel()

	p := NewLongImagePrecision()
	assert.Equal(t, SameAspectRatio, p.Get(100, 1000, 400, 400))
	assert.Equal(t, LessPixels, p.Get(300, 400, 400, 400))
	assert.Equal(t, "LongImage(SameAspectRatio,LessPixels,LongImageDecider(3.0))", p.Key())

	s := NewLongImageScale()
	assert.Equal(t, StartCrop, s.Get(100, 1000, 400, 400))
	assert.Equal(t, CenterCrop, s.Get(300, 400, 400, 400))
}

func TestFixedDeciders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Exactly, FixedPrecision(Exactly).Get(1, 2, 3, 4))
	assert.Equal(t, "Fixed(Exactly)", FixedPrecision(Exactly).Key())
	assert.Equal(t, EndCrop, FixedScale(EndCrop).Get(1, 2, 3, 4))
	assert.Equal(t, "Fixed(EndCrop)", FixedScale(EndCrop).Key())
}

func TestParseNames(t *testing.T) {
	t.Parallel()

	p, err := ParsePrecision("same_aspect_ratio")
	require.NoError(t, err)
	assert.Equal(t, SameAspectRatio, p)

	p, err = ParsePrecision("EXACTLY")
	require.NoError(t, err)
	assert.Equal(t, Exactly, p)

	_, err = ParsePrecision("nearest")
	require.Error(t, err)

	s, err := ParseScale("center-crop")
	require.NoError(t, err)
	assert.Equal(t, CenterCrop, s)

	s, err = ParseScale("FILL")
	require.NoError(t, err)
	assert.Equal(t, Fill, s)

	_, err = ParseScale("middle")
	require.Error(t, err)
}
