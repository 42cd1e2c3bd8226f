package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/svdflow/types"
)

func validRequest() Request {
	r := DefaultRequest()
	r.Image = EncodeImageBytes([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00})
	return r
}

func TestDefaultRequest(t *testing.T) {
	r := DefaultRequest()
	assert.Equal(t, 1024, r.Width)
	assert.Equal(t, 576, r.Height)
	assert.Equal(t, 25, r.NumFrames)
	assert.Equal(t, 25, r.NumInferenceSteps)
	assert.Equal(t, 1.0, r.MinGuidanceScale)
	assert.Equal(t, 3.0, r.MaxGuidanceScale)
	assert.Equal(t, 6, r.FPS)
	assert.Equal(t, 127, r.MotionBucketID)
	assert.Equal(t, 0.02, r.NoiseAugStrength)
	assert.Equal(t, 8, r.DecodeChunkSize)
	assert.Equal(t, int64(42), r.Seed)
	assert.Empty(t, r.Image)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Request)
		wantErr string
	}{
		{name: "valid base64 image", modify: func(r *Request) {}},
		{name: "valid url image", modify: func(r *Request) { r.Image = "https://example.com/rocket.png" }},
		{name: "missing image", modify: func(r *Request) { r.Image = "" }, wantErr: "image is required"},
		{name: "garbage image", modify: func(r *Request) { r.Image = "not base64!" }, wantErr: "neither a URL"},
		{name: "zero frames", modify: func(r *Request) { r.NumFrames = 0 }, wantErr: "num_frames"},
		{name: "negative fps", modify: func(r *Request) { r.FPS = -1 }, wantErr: "fps"},
		{name: "zero width", modify: func(r *Request) { r.Width = 0 }, wantErr: "width"},
		{name: "inverted guidance", modify: func(r *Request) { r.MinGuidanceScale = 4 }, wantErr: "min_guidance_scale"},
		{name: "noise above one", modify: func(r *Request) { r.NoiseAugStrength = 1.5 }, wantErr: "noise_aug_strength"},
		{name: "motion bucket out of range", modify: func(r *Request) { r.MotionBucketID = 300 }, wantErr: "motion_bucket_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.modify(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequest_MarshalIsCanonical(t *testing.T) {
	r := DefaultRequest()
	r.Image = "https://example.com/a.png?x=1&y=2"

	data, err := r.Marshal()
	require.NoError(t, err)

	want := `{"image":"https://example.com/a.png?x=1&y=2","width":1024,"height":576,"num_frames":25,` +
		`"num_inference_steps":25,"min_guidance_scale":1,"max_guidance_scale":3,"fps":6,` +
		`"motion_bucket_id":127,"noise_aug_strength":0.02,"decode_chunk_size":8,"seed":42}`
	assert.Equal(t, want, string(data))

	again, err := r.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	back, err := UnmarshalRequest(data)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestRequest_WithSeedReturnsCopy(t *testing.T) {
	base := validRequest()
	next := base.WithSeed(7)

	assert.Equal(t, int64(42), base.Seed)
	assert.Equal(t, int64(7), next.Seed)
	assert.Equal(t, base.Image, next.Image)
}

func TestRequest_WithImage(t *testing.T) {
	r := DefaultRequest().WithImage(&PreparedImage{Base64: "AAAA", Width: 640, Height: 360})
	assert.Equal(t, "AAAA", r.Image)
	assert.Equal(t, 640, r.Width)
	assert.Equal(t, 360, r.Height)
}
