package services

import (
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
)

// BumpWait 为 sent 且无浏览时建议的等待时长。
const BumpWait = 24 * time.Hour

// Recommend 按固定优先级匹配规则，首个命中者生效；无命中返回 nil。
// 纯函数：不做 I/O，不依赖调用顺序。
func Recommend(status po.OutreachStatus, agg vo.AnalyticsAggregate) *vo.Recommendation {
	switch {
	case status == po.OutreachStatusClicked && agg.Bookings == 0:
		return &vo.Recommendation{
			Kind:    vo.RecommendDraftFollowUp,
			Title:   "Draft a follow-up",
			Message: "They clicked your call to action but have not booked yet. Send a short follow-up while interest is high.",
		}
	case status == po.OutreachStatusViewed && agg.Clicks == 0:
		return &vo.Recommendation{
			Kind:    vo.RecommendNudge,
			Title:   "Send a shorter nudge",
			Message: fmt.Sprintf("They watched %d%% on average without clicking. Try a shorter video or a different angle.", agg.AvgWatchPercent),
		}
	case status == po.OutreachStatusSent && agg.Views == 0:
		return &vo.Recommendation{
			Kind:    vo.RecommendWaitThenBump,
			Title:   "Wait, then bump",
			Message: "No views yet. Give it 24 hours, then bump the thread.",
			WaitFor: BumpWait,
		}
	case status == po.OutreachStatusBooked:
		return &vo.Recommendation{
			Kind:    vo.RecommendMeetingPrep,
			Title:   "Prepare for the meeting",
			Message: "A meeting is booked. Review their engagement and prepare your talking points.",
		}
	default:
		return nil
	}
}
