package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/shopsync/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	PullRate        rate.Limit    // 商品プルのレート（req/sec）
	PullBurst       int           // 商品プルのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、商品プル 5 req/min/user。
// プルは1回でマーケットプレイスAPIを多数呼ぶため、別枠で厳しく制限する。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		PullRate:        rate.Limit(5.0 / 60.0),
		PullBurst:       5,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
// lastAccessはUnixNanoのアトミック値。ヒット時の更新をRLockのまま行い、
// 全ユーザーが1つの書き込みロックに直列化されるのを避ける。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

func (ul *userLimiter) touch() {
	ul.lastAccess.Store(time.Now().UnixNano())
}

// limiterGroup は1種類のレート制限のエントリ群を管理する。
type limiterGroup struct {
	mu       sync.RWMutex
	limiters map[string]*userLimiter
	rateVal  rate.Limit
	burst    int
}

func newLimiterGroup(r rate.Limit, burst int) *limiterGroup {
	return &limiterGroup{
		limiters: make(map[string]*userLimiter),
		rateVal:  r,
		burst:    burst,
	}
}

// getOrCreate はユーザーのリミッターを取得または作成する。
func (g *limiterGroup) getOrCreate(userID string) *rate.Limiter {
	g.mu.RLock()
	ul, exists := g.limiters[userID]
	g.mu.RUnlock()

	if exists {
		ul.touch()
		return ul.limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// ダブルチェック
	if ul, exists := g.limiters[userID]; exists {
		ul.touch()
		return ul.limiter
	}

	ul = &userLimiter{limiter: rate.NewLimiter(g.rateVal, g.burst)}
	ul.touch()
	g.limiters[userID] = ul
	return ul.limiter
}

// cleanup は最終アクセス時刻がttlを超えたエントリを削除する。
func (g *limiterGroup) cleanup(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl).UnixNano()
	g.mu.Lock()
	defer g.mu.Unlock()
	for userID, ul := range g.limiters {
		if ul.lastAccess.Load() < cutoff {
			delete(g.limiters, userID)
		}
	}
}

func (g *limiterGroup) count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.limiters)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限と商品プルのレート制限の2種類を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterGroup
	pull    *limiterGroup
	stopCh  chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterGroup(config.GeneralRate, config.GeneralBurst),
		pull:    newLimiterGroup(config.PullRate, config.PullBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general", rl.config.GeneralRate)
}

// PullMiddleware は商品プル専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) PullMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.pull, "pull", rl.config.PullRate)
}

func (rl *RateLimiter) middleware(group *limiterGroup, limitType string, r rate.Limit) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userID, err := UserIDFromContext(req.Context())
			if err != nil {
				WriteErrorResponse(w, model.NewUnauthorizedError("ログインしていません。ログインしてからアクセスしてください。"))
				return
			}

			if !group.getOrCreate(userID).Allow() {
				writeRateLimitResponse(w, r)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// PullLimiterCount は現在管理されている商品プルリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) PullLimiterCount() int {
	return rl.pull.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ttl := rl.config.CleanupInterval * 2
			rl.general.cleanup(ttl)
			rl.pull.cleanup(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, &model.APIError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Status:  http.StatusTooManyRequests,
		Message: "リクエストが多すぎます。しばらく待ってから再度お試しください。",
	})
}
