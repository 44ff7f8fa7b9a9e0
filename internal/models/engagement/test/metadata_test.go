package engagement_test

import (
	"encoding/json"
	"testing"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/engagement"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"

	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	eventType, err := engagement.ParseEventType("  Page_Viewed ")
	require.NoError(t, err)
	require.Equal(t, po.EventPageViewed, eventType)

	_, err = engagement.ParseEventType("bounced")
	require.ErrorIs(t, err, engagement.ErrUnknownEventType)
}

func TestDecode_TaggedVariants(t *testing.T) {
	meta, err := engagement.Decode(po.EventVideoWatched75, json.RawMessage(`{"position_seconds":31.5}`))
	require.NoError(t, err)
	watch, ok := meta.(engagement.WatchProgressMetadata)
	require.True(t, ok)
	require.Equal(t, 75, watch.Threshold)
	require.Equal(t, po.EventVideoWatched75, watch.EventType())

	meta, err = engagement.Decode(po.EventCTAClicked, json.RawMessage(`{"cta_type":"book-meeting","url":"https://cal.example"}`))
	require.NoError(t, err)
	require.Equal(t, po.CTABookMeeting, meta.(engagement.CTAClickedMetadata).CTAType)

	meta, err = engagement.Decode(po.EventOpened, nil)
	require.NoError(t, err)
	require.Equal(t, po.EventOpened, meta.EventType())

	meta, err = engagement.Decode(po.EventDelivered, json.RawMessage(`null`))
	require.NoError(t, err)
	require.Equal(t, po.EventDelivered, meta.EventType())
}

func TestDecode_Rejections(t *testing.T) {
	cases := []struct {
		name      string
		eventType po.EventType
		raw       string
	}{
		{name: "unknown field", eventType: po.EventPageViewed, raw: `{"foo":1}`},
		{name: "wrong type", eventType: po.EventOpened, raw: `{"user_agent":5}`},
		{name: "negative position", eventType: po.EventVideoWatched25, raw: `{"position_seconds":-1}`},
		{name: "bad cta type", eventType: po.EventCTAClicked, raw: `{"cta_type":"fax"}`},
		{name: "slot end before start", eventType: po.EventMeetingBooked, raw: `{"slot_start":"2026-03-01T10:00:00Z","slot_end":"2026-03-01T09:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engagement.Decode(tc.eventType, json.RawMessage(tc.raw))
			require.ErrorIs(t, err, engagement.ErrInvalidMetadata)
		})
	}

	_, err := engagement.Decode(po.EventType("bounced"), nil)
	require.ErrorIs(t, err, engagement.ErrUnknownEventType)
}

func TestEncode(t *testing.T) {
	raw, err := engagement.Encode(engagement.OpenedMetadata{})
	require.NoError(t, err)
	require.Nil(t, raw)

	raw, err = engagement.Encode(engagement.PageViewedMetadata{Referrer: "https://mail.example"})
	require.NoError(t, err)
	require.JSONEq(t, `{"referrer":"https://mail.example"}`, string(raw))

	raw, err = engagement.Encode(nil)
	require.NoError(t, err)
	require.Nil(t, raw)
}
