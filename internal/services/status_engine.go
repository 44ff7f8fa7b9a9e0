package services

import (
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
)

// InducedStatus 返回事件触发的最低状态；未知事件与不影响状态的事件返回 false。
func InducedStatus(eventType po.EventType) (po.OutreachStatus, bool) {
	switch eventType {
	case po.EventDelivered:
		return po.OutreachStatusSent, true
	case po.EventOpened,
		po.EventPageViewed,
		po.EventVideoWatched25,
		po.EventVideoWatched50,
		po.EventVideoWatched75,
		po.EventVideoWatched100:
		return po.OutreachStatusViewed, true
	case po.EventGIFClicked:
		// 仅计入分析，邮件内 GIF 点击不代表打开了落地页。
		return "", false
	case po.EventCTAClicked:
		return po.OutreachStatusClicked, true
	case po.EventMeetingBooked:
		return po.OutreachStatusBooked, true
	default:
		return "", false
	}
}

// ApplyEvent 按 max(current, induced) 规则推进状态，永不回退。
func ApplyEvent(current po.OutreachStatus, eventType po.EventType) po.OutreachStatus {
	induced, ok := InducedStatus(eventType)
	if !ok {
		return current
	}
	return po.MaxStatus(current, induced)
}

// ReplayStatus 从基线状态依次折叠事件日志，结果与逐条写入一致。
func ReplayStatus(base po.OutreachStatus, events []*po.VideoEvent) po.OutreachStatus {
	status := base
	for _, event := range SortEvents(events) {
		status = ApplyEvent(status, event.Type)
	}
	return status
}

// ReplayBase 返回重放事件日志时使用的基线：流水线完成为 ready，已显式发送为 sent。
func ReplayBase(outreach *po.VideoOutreach) po.OutreachStatus {
	if outreach.SentAt != nil {
		return po.OutreachStatusSent
	}
	if outreach.PhaseCompleted == po.PhaseDone {
		return po.OutreachStatusReady
	}
	return outreach.Status
}

// CanIngest 判断记录是否已进入可接收互动事件的阶段（ready 及以上）。
func CanIngest(status po.OutreachStatus) bool {
	return status.Rank() >= po.OutreachStatusReady.Rank()
}

// ApplyManualStatus 处理发送者显式设置状态，目前仅支持 sent。
// 当前未达 ready 时返回 IllegalTransitionError；已达到或超过目标时为 no-op。
func ApplyManualStatus(current, target po.OutreachStatus) (po.OutreachStatus, bool, error) {
	if target != po.OutreachStatusSent {
		return current, false, NewValidationError("status %q cannot be set explicitly; only %q is supported", target, po.OutreachStatusSent)
	}
	if !CanIngest(current) {
		return current, false, NewIllegalTransitionError(current, target)
	}
	next := po.MaxStatus(current, target)
	return next, next != current, nil
}
