package dto

// QuotaInfo 额度信息
type QuotaInfo struct {
	Tier                 string `json:"tier"`
	EffectiveTier        string `json:"effective_tier"`
	PromptsPerMonth      int    `json:"prompts_per_month"` // -1 表示不限
	Unlimited            bool   `json:"unlimited"`
	PromptsRemaining     int    `json:"prompts_remaining"`
	PromptsUsedThisMonth int    `json:"prompts_used_this_month"`
	StorageUsedMB        int    `json:"storage_used_mb"`
	StorageLimitMB       int    `json:"storage_limit_mb"`
	OverQuota            bool   `json:"over_quota"`
	DiscountPercent      int    `json:"discount_percent,omitempty"`
	ResetAt              string `json:"reset_at"`
}

// DebitResponse 扣减提示额度的结果
type DebitResponse struct {
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// StorageCreditRequest 存储额度变动
type StorageCreditRequest struct {
	DeltaMB int `json:"delta_mb" binding:"required"`
}

// StorageResponse 存储额度状态
type StorageResponse struct {
	UsedMB    int  `json:"used_mb"`
	LimitMB   int  `json:"limit_mb"`
	OverQuota bool `json:"over_quota"`
}

// UploadResponse 文件上传结果
type UploadResponse struct {
	ObjectKey string          `json:"object_key"`
	URL       string          `json:"url"`
	SizeMB    int             `json:"size_mb"`
	Storage   StorageResponse `json:"storage"`
}

// SetTierRequest 计费回调更新套餐
type SetTierRequest struct {
	Tier string `json:"tier" binding:"required,oneof=free pro power"`
}

// ProvisionRequest 注册系统开通账户
type ProvisionRequest struct {
	Username string  `json:"username" binding:"required,min=3,max=50"`
	Email    *string `json:"email,omitempty" binding:"omitempty,email"`
	Tier     string  `json:"tier" binding:"omitempty,oneof=free pro power"`
	Timezone string  `json:"timezone,omitempty"`
}
