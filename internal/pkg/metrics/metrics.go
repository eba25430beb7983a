package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 额度账本与成长系统的 Prometheus 指标
type Collector struct {
	promptDebits      *prometheus.CounterVec
	ledgerRejections  *prometheus.CounterVec
	storageCredits    *prometheus.CounterVec
	promoRedemptions  *prometheus.CounterVec
	versionConflicts  prometheus.Counter
	levelUps          prometheus.Counter
	achievementUnlock *prometheus.CounterVec
	monthlyResets     prometheus.Counter
}

// NewCollector 创建并注册指标；reg 为 nil 时使用默认注册表
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		promptDebits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_prompt_debits_total",
			Help: "Prompt credits debited or refunded",
		}, []string{"op"}),
		ledgerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_ledger_rejections_total",
			Help: "Ledger operations rejected by reason",
		}, []string{"reason"}),
		storageCredits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_storage_credits_total",
			Help: "Storage ledger mutations by direction",
		}, []string{"direction"}),
		promoRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_promo_redemptions_total",
			Help: "Promo code redemption attempts by result",
		}, []string{"result"}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_version_conflicts_total",
			Help: "Optimistic lock conflicts on user aggregates",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_level_ups_total",
			Help: "Level-up events emitted",
		}),
		achievementUnlock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_achievement_unlocks_total",
			Help: "Achievement unlocks by achievement id",
		}, []string{"achievement"}),
		monthlyResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_monthly_resets_total",
			Help: "Billing cycle rollovers applied",
		}),
	}

	reg.MustRegister(
		c.promptDebits,
		c.ledgerRejections,
		c.storageCredits,
		c.promoRedemptions,
		c.versionConflicts,
		c.levelUps,
		c.achievementUnlock,
		c.monthlyResets,
	)
	return c
}

func (c *Collector) PromptDebited() {
	if c != nil {
		c.promptDebits.WithLabelValues("debit").Inc()
	}
}

func (c *Collector) PromptRefunded() {
	if c != nil {
		c.promptDebits.WithLabelValues("refund").Inc()
	}
}

func (c *Collector) Rejected(reason string) {
	if c != nil {
		c.ledgerRejections.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) StorageCredited(deltaMB int) {
	if c == nil {
		return
	}
	direction := "upload"
	if deltaMB < 0 {
		direction = "delete"
	}
	c.storageCredits.WithLabelValues(direction).Inc()
}

func (c *Collector) PromoRedeemed(result string) {
	if c != nil {
		c.promoRedemptions.WithLabelValues(result).Inc()
	}
}

func (c *Collector) VersionConflict() {
	if c != nil {
		c.versionConflicts.Inc()
	}
}

func (c *Collector) LevelUp() {
	if c != nil {
		c.levelUps.Inc()
	}
}

func (c *Collector) AchievementUnlocked(id string) {
	if c != nil {
		c.achievementUnlock.WithLabelValues(id).Inc()
	}
}

func (c *Collector) MonthlyReset() {
	if c != nil {
		c.monthlyResets.Inc()
	}
}

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
