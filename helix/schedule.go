package helix

import (
	"context"
	"net/url"
	"time"

	twitchbridge "github.com/opengovern/twitch-bridge"
)

type scheduleSegmentData struct {
	ID            string  `json:"id"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Title         string  `json:"title"`
	CanceledUntil *string `json:"canceled_until"`
	Category      *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"category"`
	IsRecurring bool `json:"is_recurring"`
}

// ScheduleSegment is one scheduled broadcast of a channel's stream schedule.
type ScheduleSegment struct {
	ID            string
	StartTime     time.Time
	EndTime       time.Time
	Title         string
	CanceledUntil *time.Time
	CategoryID    string
	CategoryName  string
	IsRecurring   bool
}

func mapScheduleSegment(d scheduleSegmentData) *ScheduleSegment {
	startTime, _ := time.Parse(time.RFC3339, d.StartTime)
	endTime, _ := time.Parse(time.RFC3339, d.EndTime)
	segment := &ScheduleSegment{
		ID:          d.ID,
		StartTime:   startTime,
		EndTime:     endTime,
		Title:       d.Title,
		IsRecurring: d.IsRecurring,
	}
	if d.CanceledUntil != nil {
		if t, err := time.Parse(time.RFC3339, *d.CanceledUntil); err == nil {
			segment.CanceledUntil = &t
		}
	}
	if d.Category != nil {
		segment.CategoryID = d.Category.ID
		segment.CategoryName = d.Category.Name
	}
	return segment
}

// ScheduleAPI wraps the schedule resource.
type ScheduleAPI struct {
	client *twitchbridge.Client
}

// GetScheduleSegments returns a paginator over a channel's schedule
// segments. The schedule endpoint nests its paginated list inside a
// broadcaster envelope, one level deeper than other list endpoints.
func (a *ScheduleAPI) GetScheduleSegments(broadcasterID string) *twitchbridge.Paginator[scheduleSegmentData, *ScheduleSegment] {
	return twitchbridge.NewNestedPaginator(a.client, twitchbridge.APIRequest{
		URL:   "schedule",
		Query: url.Values{"broadcaster_id": {broadcasterID}},
	}, "segments", mapScheduleSegment)
}

// GetScheduleAsICal fetches the iCalendar rendering of a channel's schedule.
// This endpoint answers with text/calendar, not JSON.
func (a *ScheduleAPI) GetScheduleAsICal(ctx context.Context, broadcasterID string) ([]byte, error) {
	resp, err := a.client.SendRequest(ctx, twitchbridge.APIRequest{
		URL:             "schedule/icalendar",
		Query:           url.Values{"broadcaster_id": {broadcasterID}},
		Unauthenticated: true,
		RawResponse:     true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
