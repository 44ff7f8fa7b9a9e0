package services

import (
	"math"
	"sort"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
)

// SortEvents 返回按 (OccurredAt, Seq) 升序排列的副本，不修改入参。
func SortEvents(events []*po.VideoEvent) []*po.VideoEvent {
	sorted := make([]*po.VideoEvent, 0, len(events))
	for _, event := range events {
		if event != nil {
			sorted = append(sorted, event)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.Seq < b.Seq
	})
	return sorted
}

// Aggregate 从事件日志推导互动指标。
//
// 观看会话以 page_viewed 开始，吸收其后的 video_watched_* 直到下一个 page_viewed；
// 会话得分为其达到的最高阈值，avg 为所有会话得分均值四舍五入，无会话时为 0。
// 首个 page_viewed 之前的观看事件不属于任何会话。
func Aggregate(events []*po.VideoEvent) vo.AnalyticsAggregate {
	var agg vo.AnalyticsAggregate
	var scores []int
	inSession := false

	for _, event := range SortEvents(events) {
		agg.EventCount++
		switch event.Type {
		case po.EventPageViewed:
			agg.Views++
			scores = append(scores, 0)
			inSession = true
		case po.EventCTAClicked:
			agg.Clicks++
		case po.EventMeetingBooked:
			agg.Bookings++
		default:
			threshold, ok := event.Type.WatchThreshold()
			if !ok || !inSession {
				continue
			}
			last := len(scores) - 1
			if threshold > scores[last] {
				scores[last] = threshold
			}
		}
	}

	agg.Sessions = len(scores)
	agg.AvgWatchPercent = averagePercent(scores)
	return agg
}

func averagePercent(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	total := 0
	for _, score := range scores {
		total += score
	}
	avg := int(math.Round(float64(total) / float64(len(scores))))
	switch {
	case avg < 0:
		return 0
	case avg > 100:
		return 100
	default:
		return avg
	}
}
