package services

import (
	"context"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// URLSigner 为存储对象签发短期只读 URL。
type URLSigner interface {
	SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, time.Time, error)
}

const defaultSignedURLTTL = 15 * time.Minute

// OutreachQueryService 封装外联记录的读用例：发送者详情与公开分享页视图。
type OutreachQueryService struct {
	store  OutreachStore
	events EventLog
	cache  AnalyticsCache
	signer URLSigner
	urlTTL time.Duration
	log    *log.Helper
}

// NewOutreachQueryService 构造读模型服务；cache 与 signer 可为 nil。
func NewOutreachQueryService(store OutreachStore, events EventLog, cache AnalyticsCache, signer URLSigner, urlTTL time.Duration, logger log.Logger) *OutreachQueryService {
	if urlTTL <= 0 {
		urlTTL = defaultSignedURLTTL
	}
	return &OutreachQueryService{
		store:  store,
		events: events,
		cache:  cache,
		signer: signer,
		urlTTL: urlTTL,
		log:    log.NewHelper(logger),
	}
}

// GetOutreach 返回发送者视角的详情，附带聚合指标与下一步建议。
func (s *OutreachQueryService) GetOutreach(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error) {
	outreach, err := s.store.GetByID(ctx, nil, videoID)
	if err != nil {
		mapped := mapStoreError(err)
		if !IsNotFound(mapped) {
			s.log.WithContext(ctx).Errorf("get outreach failed: video_id=%s err=%v", videoID, err)
		}
		return nil, mapped
	}
	aggregate, err := s.Analytics(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return vo.NewOutreachDetail(outreach, aggregate, Recommend(outreach.Status, aggregate)), nil
}

// Analytics 优先读取缓存，未命中时从事件日志重算并回填。
func (s *OutreachQueryService) Analytics(ctx context.Context, videoID uuid.UUID) (vo.AnalyticsAggregate, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, videoID)
		if err != nil {
			s.log.WithContext(ctx).Warnf("read analytics cache failed: video_id=%s err=%v", videoID, err)
		} else if ok {
			return *cached, nil
		}
	}

	history, err := s.events.ListByVideo(ctx, nil, videoID)
	if err != nil {
		s.log.WithContext(ctx).Errorf("list video events failed: video_id=%s err=%v", videoID, err)
		return vo.AnalyticsAggregate{}, mapStoreError(err)
	}
	aggregate := Aggregate(history)
	if s.cache != nil {
		if err := s.cache.Set(ctx, videoID, aggregate); err != nil {
			s.log.WithContext(ctx).Warnf("cache analytics failed: video_id=%s err=%v", videoID, err)
		}
	}
	return aggregate, nil
}

// GetPublicView 通过公开 token 读取脱敏视图；token 仅解析到自身记录，未 ready 的记录视为不存在。
func (s *OutreachQueryService) GetPublicView(ctx context.Context, token string) (*vo.PublicOutreachView, error) {
	if token == "" {
		return nil, ErrOutreachNotFound
	}
	outreach, err := s.store.GetByToken(ctx, nil, token)
	if err != nil {
		mapped := mapStoreError(err)
		if !IsNotFound(mapped) {
			s.log.WithContext(ctx).Errorf("get outreach by token failed: err=%v", err)
		}
		return nil, mapped
	}
	if outreach.PublicToken == nil || *outreach.PublicToken != token || !CanIngest(outreach.Status) {
		return nil, ErrOutreachNotFound
	}

	view := &vo.PublicOutreachView{
		Title:            outreach.Title,
		RecipientName:    outreach.Recipient.Name,
		RecipientCompany: outreach.Recipient.Company,
		Personalization:  outreach.Personalization,
		CTA:              outreach.CTA,
		DurationMillis:   outreach.DurationMillis,
	}
	if err := s.signMedia(ctx, outreach, view); err != nil {
		s.log.WithContext(ctx).Warnf("sign media urls failed: video_id=%s err=%v", outreach.VideoID, err)
		return nil, NewUpstreamError("storage", err).toKratos()
	}
	return view, nil
}

func (s *OutreachQueryService) signMedia(ctx context.Context, outreach *po.VideoOutreach, view *vo.PublicOutreachView) error {
	if s.signer == nil || outreach.RawVideoPath == nil {
		return nil
	}
	videoURL, expiresAt, err := s.signer.SignedReadURL(ctx, *outreach.RawVideoPath, s.urlTTL)
	if err != nil {
		return err
	}
	view.VideoURL = videoURL
	view.URLExpiresAt = expiresAt
	if outreach.PreviewGenerated && outreach.PreviewPath != nil {
		previewURL, _, err := s.signer.SignedReadURL(ctx, *outreach.PreviewPath, s.urlTTL)
		if err != nil {
			return err
		}
		view.PreviewURL = &previewURL
	}
	return nil
}
