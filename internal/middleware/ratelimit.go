package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	CredentialRate  rate.Limit    // 登録・認証操作のレート（req/sec）。10/60
	CredentialBurst int           // 登録・認証操作のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、登録・認証 10 req/min（いずれもクライアント単位）
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteRateLimiterConfig(120, 10)
}

// PerMinuteRateLimiterConfig は1分あたりのリクエスト数から設定を生成する。
// バーストサイズは1分あたりの上限と同じ値とする。
func PerMinuteRateLimiterConfig(generalPerMin, credentialPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		CredentialRate:  rate.Limit(float64(credentialPerMin) / 60.0),
		CredentialBurst: credentialPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientKeyContextKey struct{}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はクライアントキーごとのリミッター集合。
type limiterSet struct {
	mu       sync.RWMutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
	}
}

// getOrCreate はクライアントのリミッターを取得または作成する。
func (s *limiterSet) getOrCreate(key string) *rate.Limiter {
	s.mu.RLock()
	cl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		cl.lastAccess = time.Now()
		s.mu.Unlock()
		return cl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if cl, exists := s.limiters[key]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

func (s *limiterSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はクライアントごとのレート制限を管理する。
// クライアントは認証済みならアカウントID、匿名ならリモートアドレスで識別する。
// API全般のレート制限と、登録・認証操作のレート制限の2種類を提供する。
type RateLimiter struct {
	config     RateLimiterConfig
	general    *limiterSet
	credential *limiterSet
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:     config,
		general:    newLimiterSet(config.GeneralRate, config.GeneralBurst),
		credential: newLimiterSet(config.CredentialRate, config.CredentialBurst),
		stopCh:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// AuthMiddlewareの後に配置する。識別したクライアントキーはコンテキストに保存され、
// AllowCredentialから参照される。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			ctx := context.WithValue(r.Context(), clientKeyContextKey{}, key)

			if !rl.general.getOrCreate(key).Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AllowCredential は登録・認証操作を1回消費できるかを判定する。
// API全般のレート制限とは独立に動作する。
// GeneralMiddlewareを経由しないコンテキストでは認可コンテキストからキーを導出する。
func (rl *RateLimiter) AllowCredential(ctx context.Context) bool {
	key, ok := ctx.Value(clientKeyContextKey{}).(string)
	if !ok || key == "" {
		key = "anonymous"
		if ac := auth.FromContext(ctx); !ac.IsAnonymous() {
			key = "identity:" + ac.IdentityID
		}
	}

	if !rl.credential.getOrCreate(key).Allow() {
		slog.Warn("rate limit exceeded",
			slog.String("client", key),
			slog.String("limit_type", "credential"),
		)
		return false
	}
	return true
}

// CredentialRetryAfter は登録・認証操作が制限された後、次の1回が許可されるまでの推定時間を返す。
func (rl *RateLimiter) CredentialRetryAfter() time.Duration {
	return time.Duration(retryAfterSeconds(rl.config.CredentialRate)) * time.Second
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.count() }

// CredentialLimiterCount は現在管理されている登録・認証リミッターのエントリ数を返す。
func (rl *RateLimiter) CredentialLimiterCount() int { return rl.credential.count() }

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evict(now, ttl)
	rl.credential.evict(now, ttl)
}

// clientKey はリクエストのクライアントキーを返す。
func clientKey(r *http.Request) string {
	if ac := auth.FromContext(r.Context()); !ac.IsAnonymous() {
		return "identity:" + ac.IdentityID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfter := time.Duration(retryAfterSeconds(r)) * time.Second
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(retryAfter))
}

// retryAfterSeconds は1トークンが補充されるまでの秒数を返す。
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	sec := int(math.Ceil(1.0 / float64(r)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
