package dto_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validCreateRequest() *dto.CreateOutreachRequest {
	return &dto.CreateOutreachRequest{
		Recipient: dto.RecipientRequest{PersonID: uuid.NewString(), Name: "Dana", Email: "dana@acme.io"},
		Title:     "Quick idea",
		CTA:       dto.CTARequest{Type: "reply", Label: "Reply"},
	}
}

func TestToCreateOutreachInput_FallsBackToBody(t *testing.T) {
	req := validCreateRequest()
	owner := uuid.New()
	req.OwnerID = owner.String()
	req.IdempotencyKey = " body-key "

	input, err := dto.ToCreateOutreachInput(req, "", "")
	require.NoError(t, err)
	require.Equal(t, owner, input.OwnerID)
	require.Equal(t, "body-key", input.IdempotencyKey)
	require.Equal(t, "dana@acme.io", input.Recipient.Email)
}

func TestToCreateOutreachInput_FieldErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*dto.CreateOutreachRequest)
		message string
	}{
		{"title", func(r *dto.CreateOutreachRequest) { r.Title = "" }, "title is required"},
		{"cta type", func(r *dto.CreateOutreachRequest) { r.CTA.Type = "call" }, "cta.type must be one of"},
		{"email", func(r *dto.CreateOutreachRequest) { r.Recipient.Email = "not-an-email" }, "recipient.email is invalid"},
		{"label length", func(r *dto.CreateOutreachRequest) { r.CTA.Label = strings.Repeat("x", 81) }, "cta.label exceeds 80"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(req)
			_, err := dto.ToCreateOutreachInput(req, uuid.NewString(), "k")
			require.Error(t, err)
			require.True(t, services.IsValidation(err))
			require.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestToIngestEventInput(t *testing.T) {
	headerID := uuid.New()
	input, err := dto.ToIngestEventInput(&dto.IngestEventRequest{EventType: "opened", EventID: uuid.NewString()}, uuid.Nil, "tok", headerID.String())
	require.NoError(t, err)
	require.Equal(t, headerID, input.EventID)
	require.Equal(t, "tok", input.PublicToken)

	_, err = dto.ToIngestEventInput(&dto.IngestEventRequest{}, uuid.New(), "", "")
	require.True(t, services.IsValidation(err))
}

func TestReadUploadVideoRequest(t *testing.T) {
	videoID := uuid.New()

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("mp4"))
	req.Header.Set("Content-Type", "video/mp4; codecs=avc1")
	out, err := dto.ReadUploadVideoRequest(req, videoID, true)
	require.NoError(t, err)
	require.Equal(t, "video/mp4", out.ContentType)
	require.Equal(t, []byte("mp4"), out.Data)
	require.NotContains(t, out.String(), "mp4\x00")
	require.Contains(t, out.String(), "size=3")

	empty := httptest.NewRequest(http.MethodPost, "/", nil)
	out, err = dto.ReadUploadVideoRequest(empty, videoID, false)
	require.NoError(t, err)
	require.Nil(t, out.Binary())

	_, err = dto.ReadUploadVideoRequest(httptest.NewRequest(http.MethodPut, "/", nil), videoID, true)
	require.True(t, services.IsValidation(err))

	bad := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("hi"))
	bad.Header.Set("Content-Type", "image/png")
	_, err = dto.ReadUploadVideoRequest(bad, videoID, true)
	require.True(t, services.IsValidation(err))
}

func TestParseVideoID(t *testing.T) {
	id := uuid.New()
	parsed, err := dto.ParseVideoID(" " + id.String() + " ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = dto.ParseVideoID("abc")
	require.True(t, services.IsValidation(err))
}
