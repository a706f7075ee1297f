package model

import "time"

// GuestUser 匿名/免认证访问的合成凭据用户名
const GuestUser = "guest"

// CredentialRecord 凭据发现记录
// 按协议追加写入各自的凭据日志，允许重复 (审计链)，去重属于展示层职责
type CredentialRecord struct {
	Protocol string    `json:"protocol"`
	IP       string    `json:"ip"`
	MAC      string    `json:"mac"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	FoundAt  time.Time `json:"found_at"`
}

// IsGuest 是否为匿名访问合成凭据
func (r CredentialRecord) IsGuest() bool {
	return r.Username == GuestUser && r.Password == ""
}
