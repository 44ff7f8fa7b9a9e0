// Package gcs 提供与 Google Cloud Storage 交互的基础设施封装：写一次对象存储与 V4 签名读 URL。
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/oauth2/google"
)

// MaxSignedURLTTL 为 V4 签名允许的最长有效期。
const MaxSignedURLTTL = 7 * 24 * time.Hour

// 签名方式。
const (
	SigningModeKey = "service_account_key"
	SigningModeIAM = "iam_sign_blob"
)

type signFunc func(object string, opts *storage.SignedURLOptions) (string, error)

// MediaSigner 为分享页签发外联视频与预览的只读 URL，只接受媒体前缀下的对象。
type MediaSigner struct {
	bucket   string
	prefixes []string
	mode     string
	sign     signFunc
	now      func() time.Time
	log      *log.Helper
}

type signerOptions struct {
	accessID  string
	key       []byte
	credsJSON []byte
	client    *storage.Client
	prefixes  []string
	now       func() time.Time
}

// SignerOption 定义可选配置。
type SignerOption func(*signerOptions)

// WithClock 覆盖时间获取函数。
func WithClock(clock func() time.Time) SignerOption {
	return func(o *signerOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithServiceAccountKey 直接注入访问 ID 与 PEM 私钥，跳过凭据探测。
func WithServiceAccountKey(accessID string, privateKeyPEM []byte) SignerOption {
	return func(o *signerOptions) {
		o.accessID = accessID
		o.key = append([]byte(nil), privateKeyPEM...)
	}
}

// WithCredentialsJSON 使用给定凭据 JSON 代替默认凭据探测。
func WithCredentialsJSON(raw []byte) SignerOption {
	return func(o *signerOptions) {
		o.credsJSON = append([]byte(nil), raw...)
	}
}

// WithClient 提供 IAM signBlob 回退所用的存储客户端。
func WithClient(client *storage.Client) SignerOption {
	return func(o *signerOptions) {
		o.client = client
	}
}

// WithAllowedPrefixes 限定可签名的对象前缀。
func WithAllowedPrefixes(prefixes ...string) SignerOption {
	return func(o *signerOptions) {
		for _, p := range prefixes {
			if p = strings.Trim(p, "/"); p != "" {
				o.prefixes = append(o.prefixes, p+"/")
			}
		}
	}
}

// NewMediaSigner 选择签名方式：持有私钥时本地签名，否则经客户端走 IAM signBlob。
func NewMediaSigner(ctx context.Context, bucket, accessID string, logger log.Logger, opts ...SignerOption) (*MediaSigner, error) {
	if bucket == "" {
		return nil, errors.New("gcs signer: bucket is required")
	}
	o := signerOptions{accessID: accessID, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	helper := log.NewHelper(logger)

	if len(o.key) == 0 {
		key, detectedID, err := serviceAccountKey(ctx, o.credsJSON)
		switch {
		case err == nil:
			o.key = key
			if o.accessID == "" {
				o.accessID = detectedID
			}
		case o.client == nil:
			return nil, fmt.Errorf("init gcs signer: %w", err)
		default:
			helper.WithContext(ctx).Infof("gcs signer uses iam signBlob: bucket=%s reason=%v", bucket, err)
		}
	}

	signer := &MediaSigner{
		bucket:   bucket,
		prefixes: o.prefixes,
		now:      o.now,
		log:      helper,
	}
	if len(o.key) > 0 {
		if o.accessID == "" {
			return nil, errors.New("gcs signer: google access id is required with a private key")
		}
		accessID, key := o.accessID, o.key
		signer.mode = SigningModeKey
		signer.sign = func(object string, opts *storage.SignedURLOptions) (string, error) {
			opts.GoogleAccessID = accessID
			opts.PrivateKey = key
			return storage.SignedURL(bucket, object, opts)
		}
	} else {
		handle, accessID := o.client.Bucket(bucket), o.accessID
		signer.mode = SigningModeIAM
		signer.sign = func(object string, opts *storage.SignedURLOptions) (string, error) {
			opts.GoogleAccessID = accessID
			return handle.SignedURL(object, opts)
		}
	}
	return signer, nil
}

// Mode 返回当前签名方式。
func (s *MediaSigner) Mode() string {
	return s.mode
}

// SignedReadURL 为媒体对象签发 GET URL，返回 URL 与过期时间；超过上限的 ttl 截断为 MaxSignedURLTTL。
func (s *MediaSigner) SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, time.Time, error) {
	if err := s.checkObject(objectPath); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}
	if ttl > MaxSignedURLTTL {
		s.log.WithContext(ctx).Warnf("signed url ttl clamped: object=%s requested=%s", objectPath, ttl)
		ttl = MaxSignedURLTTL
	}

	expires := s.now().Add(ttl)
	signed, err := s.sign(objectPath, &storage.SignedURLOptions{
		Scheme:          storage.SigningSchemeV4,
		Method:          http.MethodGet,
		Expires:         expires,
		QueryParameters: url.Values{"response-content-disposition": {"inline"}},
	})
	if err != nil {
		s.log.WithContext(ctx).Errorf("sign media url failed: bucket=%s object=%s mode=%s err=%v", s.bucket, objectPath, s.mode, err)
		return "", time.Time{}, fmt.Errorf("signed url: %w", err)
	}
	return signed, expires, nil
}

func (s *MediaSigner) checkObject(objectPath string) error {
	if objectPath == "" {
		return errors.New("object path is required")
	}
	if strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "..") {
		return fmt.Errorf("object path %q is not a media object", objectPath)
	}
	if len(s.prefixes) == 0 {
		return nil
	}
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(objectPath, prefix) {
			return nil
		}
	}
	return fmt.Errorf("object path %q is outside media prefixes", objectPath)
}

// serviceAccountKey 从凭据 JSON（未提供时探测默认凭据）中取出私钥与 client_email。
func serviceAccountKey(ctx context.Context, raw []byte) ([]byte, string, error) {
	if len(raw) == 0 {
		creds, err := google.FindDefaultCredentials(ctx, storage.ScopeReadOnly)
		if err != nil {
			return nil, "", fmt.Errorf("find default credentials: %w", err)
		}
		raw = creds.JSON
	}
	if len(raw) == 0 {
		return nil, "", errors.New("default credentials carry no JSON key")
	}

	var key struct {
		Type        string `json:"type"`
		PrivateKey  string `json:"private_key"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, "", fmt.Errorf("parse credentials json: %w", err)
	}
	if key.PrivateKey == "" {
		return nil, "", fmt.Errorf("credentials of type %q carry no private key", key.Type)
	}
	return []byte(key.PrivateKey), key.ClientEmail, nil
}
